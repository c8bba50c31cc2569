package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	// DefaultFormat prefers a single-file mp4 so no muxing is needed.
	DefaultFormat = "best[ext=mp4]/best"
)

// Runner executes the acquisition tool.
type Runner interface {
	// Fetch downloads target into outPath.
	Fetch(ctx context.Context, target, outPath string) RunResult

	// Version returns the installed tool version.
	Version(ctx context.Context) (string, error)
}

// Config holds the runner's configuration.
type Config struct {
	Path       string // yt-dlp binary; resolved through PATH
	Format     string // format selector passed to -f
	Logger     *slog.Logger
	DebugPaths bool // if true, log full file paths; otherwise sanitise
}

// SubprocessRunner runs yt-dlp. Arguments are passed as a vector; no shell
// is involved, so titles need no quoting.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner. The binary is not required to exist
// until a command is run; use the doctor to check availability.
func NewRunner(cfg Config) *SubprocessRunner {
	if cfg.Path == "" {
		cfg.Path = "yt-dlp"
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SubprocessRunner{cfg: cfg}
}

// Fetch runs `yt-dlp -f <format> --no-playlist -o <outPath> <target>`.
func (r *SubprocessRunner) Fetch(ctx context.Context, target, outPath string) RunResult {
	return r.exec(ctx, outPath, io.Discard,
		"-f", r.cfg.Format,
		"--no-playlist",
		"--no-progress",
		"-o", outPath,
		"--", target,
	)
}

// Version runs `yt-dlp --version`.
func (r *SubprocessRunner) Version(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	result := r.exec(ctx, "", &limitedWriter{w: &stdout, limit: 256}, "--version")
	if !result.IsSuccess() {
		return "", fmt.Errorf("%s --version exited %d: %s", r.cfg.Path, result.ExitCode, lastLine(result.StderrTail))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// exec is the core subprocess execution helper.
func (r *SubprocessRunner) exec(ctx context.Context, outPath string, stdout io.Writer, args ...string) RunResult {
	start := time.Now()

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			r.cfg.Logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, r.cfg.Path, args...)
	// Give the tool a chance to clean up before it is killed.
	cmd.WaitDelay = 5 * time.Second

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	deadline, _ := ctx.Deadline()
	r.cfg.Logger.Debug("executing acquisition command",
		"path", r.cfg.Path,
		"args", args,
		"deadline", deadline,
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrBuf.Len() == 0 {
				stderrBuf.WriteString(err.Error())
			}
		}
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if timedOut && exitCode == 0 {
		exitCode = -1
	}

	stderrTail := stderrBuf.String()

	if exitCode != 0 {
		r.cfg.Logger.Warn("acquisition command failed",
			"exit_code", exitCode,
			"timed_out", timedOut,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		r.cfg.Logger.Debug("acquisition command succeeded",
			"duration_ms", elapsed.Milliseconds(),
			"output", r.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
		TimedOut:   timedOut,
	}
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths || path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Base(path)
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return filepath.Base(path)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// lastLine returns the last non-empty line of s; tools print the fatal
// error last.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
