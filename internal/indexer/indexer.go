// Package indexer drives remote indexing tasks from submission to a terminal
// state with bounded polling.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrnkim/adland-tv/internal/cloud"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 30 * time.Minute
)

// State is the orchestrator's view of a task.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateReady     State = "ready"
	StateFailed    State = "failed"
)

// Source is the media to index. Exactly one of FilePath and URL is used;
// FilePath wins when both are set.
type Source struct {
	FilePath string
	Filename string
	URL      string
}

// IndexingError reports a task that could not be submitted or that reached
// the failed state.
type IndexingError struct {
	TaskID string
	Status cloud.TaskStatus
	Err    error
}

func (e *IndexingError) Error() string {
	switch {
	case e.TaskID == "":
		return fmt.Sprintf("indexing submit failed: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("indexing task %s: %v", e.TaskID, e.Err)
	default:
		return fmt.Sprintf("indexing task %s ended with status %s", e.TaskID, e.Status)
	}
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}

// TimedOutError reports a task that did not reach a terminal state within the
// configured deadline or attempt budget.
type TimedOutError struct {
	TaskID     string
	LastStatus cloud.TaskStatus
	Attempts   int
	Elapsed    time.Duration
}

func (e *TimedOutError) Error() string {
	last := string(e.LastStatus)
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf("indexing task %s timed out after %d polls (%s), last status %s",
		e.TaskID, e.Attempts, e.Elapsed.Round(time.Second), last)
}

// Config configures an Orchestrator.
type Config struct {
	PollInterval time.Duration
	// Timeout bounds the time from submission to a terminal state.
	Timeout time.Duration
	// MaxAttempts caps the number of polls; 0 means only Timeout applies.
	MaxAttempts       int
	EnableVideoStream bool
	Logger            *slog.Logger
}

// Orchestrator submits media to the index and waits for the result.
type Orchestrator struct {
	tasks cloud.TaskService
	cfg   Config
	now   func() time.Time
}

func New(tasks cloud.TaskService, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{tasks: tasks, cfg: cfg, now: time.Now}
}

// IndexAndWait submits src with the given provenance metadata and polls at a
// fixed interval until the task is ready, returning the new asset id.
// A failed task yields *IndexingError, an exhausted budget *TimedOutError.
// Retryable poll errors count as attempts; other poll errors abort.
func (o *Orchestrator) IndexAndWait(ctx context.Context, src Source, metadata map[string]string) (string, error) {
	req := cloud.TaskRequest{
		EnableVideoStream: o.cfg.EnableVideoStream,
		UserMetadata:      metadata,
	}
	if src.FilePath != "" {
		req.FilePath = src.FilePath
		req.Filename = src.Filename
	} else {
		req.VideoURL = src.URL
	}

	start := o.now()
	task, err := o.tasks.Create(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &IndexingError{Err: err}
	}

	logger := o.cfg.Logger.With("task_id", task.ID)
	logger.Info("indexing task submitted", "state", StateSubmitted)

	last := task.Status
	attempts := 0
	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
		attempts++

		current, err := o.tasks.Get(ctx, task.ID)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil && !cloud.IsRetryable(err):
			return "", &IndexingError{TaskID: task.ID, Status: last, Err: err}
		case err != nil:
			logger.Warn("task poll failed, will retry", "attempt", attempts, "error", err)
		default:
			if current.Status != last {
				logger.Info("task status changed", "state", StatePolling, "status", current.Status, "attempt", attempts)
			}
			last = current.Status

			switch current.Status {
			case cloud.TaskReady:
				if current.VideoID == "" {
					return "", &IndexingError{TaskID: task.ID, Status: last, Err: errors.New("task ready without a video id")}
				}
				logger.Info("indexing complete",
					"state", StateReady,
					"video_id", current.VideoID,
					"attempts", attempts,
					"duration_ms", o.now().Sub(start).Milliseconds(),
				)
				return current.VideoID, nil
			case cloud.TaskFailed:
				logger.Warn("indexing failed", "state", StateFailed, "attempts", attempts)
				return "", &IndexingError{TaskID: task.ID, Status: last}
			}
		}

		elapsed := o.now().Sub(start)
		if elapsed >= o.cfg.Timeout || (o.cfg.MaxAttempts > 0 && attempts >= o.cfg.MaxAttempts) {
			logger.Warn("indexing timed out", "attempts", attempts, "last_status", last)
			return "", &TimedOutError{TaskID: task.ID, LastStatus: last, Attempts: attempts, Elapsed: elapsed}
		}
		timer.Reset(o.cfg.PollInterval)
	}
}
