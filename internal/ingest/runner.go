package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// RunState is a snapshot of the runner's current run.
type RunState struct {
	Active bool    `json:"active"`
	RunID  string  `json:"run_id,omitempty"`
	Tag    string  `json:"tag,omitempty"`
	DryRun bool    `json:"dry_run,omitempty"`
	Last   *Result `json:"-"`
}

// Runner executes pipeline runs in the background, one at a time.
type Runner struct {
	pipeline *Pipeline
	logger   *slog.Logger
	parent   context.Context

	mu     sync.Mutex
	active *Options
	cancel context.CancelFunc
	last   *Result
	wg     sync.WaitGroup
}

// NewRunner returns a runner whose runs are cancelled when ctx is.
func NewRunner(ctx context.Context, pipeline *Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{pipeline: pipeline, logger: logger, parent: ctx}
}

// Start launches a run and returns its id. It fails with ErrRunActive when
// another run has not finished yet.
func (r *Runner) Start(opts Options) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return "", ErrRunActive
	}
	if !opts.DryRun && r.pipeline.Offline() {
		return "", ErrRemoteUnavailable
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}

	ctx, cancel := context.WithCancel(r.parent)
	r.active = &opts
	r.cancel = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer cancel()

		res, err := r.pipeline.Run(ctx, opts)
		switch {
		case errors.Is(err, context.Canceled):
			r.logger.Warn("background run interrupted", "run_id", opts.RunID, "tag", opts.Tag)
		case err != nil:
			r.logger.Error("background run failed", "run_id", opts.RunID, "tag", opts.Tag, "error", err)
		default:
			r.logger.Info("background run finished", "run_id", opts.RunID, "tag", opts.Tag, "status", res.Status)
		}

		r.mu.Lock()
		r.active = nil
		r.cancel = nil
		if res != nil {
			r.last = res
		}
		r.mu.Unlock()
	}()

	return opts.RunID, nil
}

// State returns the current run, if any, and the last finished result.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunState{Last: r.last}
	if r.active != nil {
		st.Active = true
		st.RunID = r.active.RunID
		st.Tag = r.active.Tag
		st.DryRun = r.active.DryRun
	}
	return st
}

// Cancel stops the active run. It reports whether a run was active.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Wait blocks until the active run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
