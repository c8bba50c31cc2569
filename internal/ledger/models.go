// Package ledger keeps the history of ingestion runs and their item
// outcomes in SQLite.
package ledger

import "time"

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusDryRun      = "dry_run"
	RunStatusAborted     = "aborted"
	RunStatusInterrupted = "interrupted"

	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

type Run struct {
	ID         string     `json:"id"`
	Tag        string     `json:"tag"`
	DryRun     bool       `json:"dry_run"`
	Status     string     `json:"status"`
	Discovered int        `json:"discovered"`
	Planned    int        `json:"planned"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Pending    int        `json:"pending"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type RunItem struct {
	RunID            string    `json:"run_id"`
	Seq              int       `json:"seq"`
	Slug             string    `json:"slug"`
	Title            string    `json:"title"`
	Outcome          string    `json:"outcome"`
	AssetID          string    `json:"asset_id,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	AnalysisDegraded bool      `json:"analysis_degraded,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Counts are the per-run totals stored on a run row.
type Counts struct {
	Discovered int
	Planned    int
	Completed  int
	Failed     int
	Pending    int
}

// RunFilter narrows ListRuns. A zero Limit means DefaultListLimit.
type RunFilter struct {
	Tag    string
	Status string
	Limit  int
}

const DefaultListLimit = 50
