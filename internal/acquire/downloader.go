package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mrnkim/adland-tv/internal/feed"
)

// Extension is the container extension of downloaded media.
const Extension = ".mp4"

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	Dir     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Downloader is the acquisition stage: it resolves an entry to a local media
// file, downloading it when it is not already cached.
type Downloader struct {
	runner  Runner
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDownloader creates a Downloader writing into cfg.Dir.
func NewDownloader(runner Runner, cfg DownloaderConfig) *Downloader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Downloader{runner: runner, dir: cfg.Dir, timeout: timeout, logger: logger}
}

// PathFor returns the cache path for entry.
func (d *Downloader) PathFor(entry feed.Entry) string {
	return filepath.Join(d.dir, SanitizeFilename(entry.Title)+Extension)
}

// Acquire returns a local handle to the entry's media. An existing non-empty
// file at the cache path is reused without running the tool. The tool searches
// by title unless the entry carries a direct media URL.
// Failures are reported as *AcquisitionError.
func (d *Downloader) Acquire(ctx context.Context, entry feed.Entry) (Media, error) {
	path := d.PathFor(entry)
	media := Media{Path: path, Filename: filepath.Base(path)}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		d.logger.Info("media already downloaded", "file", media.Filename, "size_bytes", info.Size())
		media.Size = info.Size()
		media.Cached = true
		return media, nil
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return Media{}, fmt.Errorf("create download dir: %w", err)
	}

	target := entry.MediaURL
	if target == "" {
		target = "ytsearch1:" + entry.Title
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.Info("acquiring media", "title", entry.Title, "target", target)
	result := d.runner.Fetch(runCtx, target, path)

	if !result.IsSuccess() {
		d.cleanupPartial(path)
		return Media{}, &AcquisitionError{
			Title:    entry.Title,
			Target:   target,
			ExitCode: result.ExitCode,
			TimedOut: result.TimedOut && ctx.Err() == nil,
			Detail:   result.StderrTail,
		}
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		d.cleanupPartial(path)
		return Media{}, &AcquisitionError{
			Title:  entry.Title,
			Target: target,
			Detail: "no output file produced",
		}
	}

	media.Size = info.Size()
	d.logger.Info("media downloaded",
		"file", media.Filename,
		"size_mb", fmt.Sprintf("%.1f", float64(info.Size())/1024/1024),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return media, nil
}

// cleanupPartial removes leftovers of an interrupted download.
func (d *Downloader) cleanupPartial(path string) {
	for _, p := range []string{path + ".part", path + ".ytdl", path} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		// A zero-length target would be mistaken for a cache hit later.
		if p == path && info.Size() > 0 {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("cannot remove partial download", "file", filepath.Base(p), "error", err)
		}
	}
}
