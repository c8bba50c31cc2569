package ingest

import (
	"context"

	"github.com/mrnkim/adland-tv/internal/acquire"
	"github.com/mrnkim/adland-tv/internal/analysis"
	"github.com/mrnkim/adland-tv/internal/cloud"
	"github.com/mrnkim/adland-tv/internal/feed"
	"github.com/mrnkim/adland-tv/internal/indexer"
)

// FeedSource yields the current feed entries.
type FeedSource interface {
	Fetch(ctx context.Context) ([]feed.Entry, error)
}

// IndexLister lists every asset already in the remote index.
type IndexLister interface {
	ListAll(ctx context.Context) ([]cloud.Video, error)
}

// Acquirer obtains local media for an entry.
type Acquirer interface {
	Acquire(ctx context.Context, entry feed.Entry) (acquire.Media, error)
}

// Indexer submits media and waits for the resulting asset.
type Indexer interface {
	IndexAndWait(ctx context.Context, src indexer.Source, metadata map[string]string) (string, error)
}

// Analyzer requests structured tags for an indexed asset. The returned
// Result is always usable; a non-nil error only explains a degraded result.
type Analyzer interface {
	Analyze(ctx context.Context, assetID string) (analysis.Result, error)
}

// MetadataWriter replaces an asset's metadata and removes assets.
type MetadataWriter interface {
	UpdateMetadata(ctx context.Context, assetID string, metadata map[string]any) error
	Delete(ctx context.Context, assetID string) error
}

var (
	_ FeedSource     = (*feed.Reader)(nil)
	_ IndexLister    = (cloud.VideoService)(nil)
	_ MetadataWriter = (cloud.VideoService)(nil)
	_ Acquirer       = (*acquire.Downloader)(nil)
	_ Indexer        = (*indexer.Orchestrator)(nil)
	_ Analyzer       = (*analysis.Analyzer)(nil)
)
