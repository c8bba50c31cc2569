package acquire

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// CachedDoctor probes the acquisition tool and caches the result with a TTL.
type CachedDoctor struct {
	runner  Runner
	path    string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *ToolStatus
}

// NewCachedDoctor creates a caching wrapper around tool probes.
func NewCachedDoctor(runner Runner, path string, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		runner:  runner,
		path:    path,
		ttl:     defaultCacheTTL,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Get returns the cached status if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) ToolStatus {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		status := *d.cached
		d.mu.RUnlock()
		return status
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the last probe result without probing.
func (d *CachedDoctor) Peek() (ToolStatus, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cached == nil {
		return ToolStatus{}, false
	}
	return *d.cached, true
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) ToolStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	status := ToolStatus{Path: d.path, ProbedAt: time.Now()}
	version, err := d.runner.Version(ctx)
	if err != nil {
		d.logger.Warn("acquisition tool probe failed", "path", d.path, "error", err)
		status.Error = err.Error()
	} else {
		status.Available = true
		status.Version = version
		d.logger.Info("acquisition tool available", "path", d.path, "version", version)
	}

	d.cached = &status
	return status
}

// Invalidate clears the cached status.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
