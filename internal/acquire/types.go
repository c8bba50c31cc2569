// Package acquire obtains source media for feed entries by running yt-dlp as a
// subprocess, caching downloads on local disk.
package acquire

import (
	"fmt"
	"time"
)

// RunResult is the structured outcome of executing the acquisition tool.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
	TimedOut   bool          `json:"timed_out,omitempty"`
}

// IsSuccess returns true if the subprocess exited with code 0.
func (r RunResult) IsSuccess() bool {
	return r.ExitCode == 0
}

// Media is a local handle to acquired media.
type Media struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Cached   bool   `json:"cached"`
}

// AcquisitionError reports media that could not be obtained for one entry.
type AcquisitionError struct {
	Title    string
	Target   string
	ExitCode int
	TimedOut bool
	Detail   string
}

func (e *AcquisitionError) Error() string {
	switch {
	case e.TimedOut:
		return "download failed: timed out"
	case e.ExitCode != 0:
		return fmt.Sprintf("download failed: exit %d: %s", e.ExitCode, lastLine(e.Detail))
	default:
		return "download failed: " + lastLine(e.Detail)
	}
}

// ToolStatus describes the installed acquisition tool.
type ToolStatus struct {
	Path      string    `json:"path"`
	Available bool      `json:"available"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	ProbedAt  time.Time `json:"probed_at"`
}
