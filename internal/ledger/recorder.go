package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrnkim/adland-tv/internal/ingest"
)

const recordTimeout = 5 * time.Second

// Recorder writes pipeline events to the ledger. Write failures are logged
// and never reach the pipeline.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Observe(e ingest.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var err error
	switch e.Type {
	case ingest.EventRunStarted:
		err = r.repo.CreateRun(ctx, &Run{
			ID:        e.RunID,
			Tag:       e.Tag,
			DryRun:    e.DryRun,
			Status:    RunStatusRunning,
			StartedAt: e.Time,
		})
	case ingest.EventRunPlanned:
		err = r.repo.UpdateRunCounts(ctx, e.RunID, countsFrom(e.Counts))
	case ingest.EventItemCompleted, ingest.EventItemFailed:
		outcome := OutcomeCompleted
		if e.Type == ingest.EventItemFailed {
			outcome = OutcomeFailed
		}
		err = r.repo.AddItem(ctx, &RunItem{
			RunID:            e.RunID,
			Seq:              e.Seq,
			Slug:             e.Slug,
			Title:            e.Title,
			Outcome:          outcome,
			AssetID:          e.AssetID,
			Reason:           e.Reason,
			AnalysisDegraded: e.Degraded,
			DurationMS:       int64(e.Duration * 1000),
			CreatedAt:        e.Time,
		})
	case ingest.EventRunFinished:
		err = r.repo.FinishRun(ctx, e.RunID, RunStatus(e.Status), countsFrom(e.Counts), e.Error, e.Time)
	default:
		return
	}

	if err != nil {
		r.logger.Warn("failed to record run event", "run_id", e.RunID, "event", e.Type, "error", err)
	}
}

// RunStatus maps a pipeline status to the stored run status.
func RunStatus(s ingest.Status) string {
	switch s {
	case ingest.StatusDryRun:
		return RunStatusDryRun
	case ingest.StatusAborted:
		return RunStatusAborted
	case ingest.StatusInterrupted:
		return RunStatusInterrupted
	case ingest.StatusRunning:
		return RunStatusRunning
	default:
		return RunStatusCompleted
	}
}

func countsFrom(c *ingest.Counts) Counts {
	if c == nil {
		return Counts{}
	}
	return Counts{
		Discovered: c.Discovered,
		Planned:    c.Planned,
		Completed:  c.Completed,
		Failed:     c.Failed,
		Pending:    c.Pending,
	}
}
