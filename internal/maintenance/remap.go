// Package maintenance holds whole-index metadata maintenance tasks.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/mrnkim/adland-tv/internal/cloud"
	"github.com/mrnkim/adland-tv/internal/metadata"
)

// Videos is the part of the index client a remap needs.
type Videos interface {
	ListAll(ctx context.Context) ([]cloud.Video, error)
	UpdateMetadata(ctx context.Context, videoID string, metadata map[string]any) error
}

type RemapOptions struct {
	Field  string
	From   string
	To     string
	DryRun bool
	Logger *slog.Logger
}

func (o RemapOptions) validate() error {
	switch {
	case o.Field == "":
		return errors.New("remap: field is required")
	case o.From == "":
		return errors.New("remap: from value is required")
	case o.From == o.To:
		return fmt.Errorf("remap: from and to are both %q", o.From)
	}
	return nil
}

// RemapChange is one asset selected for rewriting.
type RemapChange struct {
	VideoID string
	Title   string
	Err     error
}

type RemapResult struct {
	Scanned int
	Updated int
	Failed  int
	Changes []RemapChange
}

// Remap rewrites Field from From to To on every asset in the index. The whole
// user metadata map is written back with only that field changed. Per-asset
// failures are counted; listing failures abort.
func Remap(ctx context.Context, videos Videos, opts RemapOptions) (*RemapResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	all, err := videos.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}

	res := &RemapResult{Scanned: len(all)}
	for _, v := range all {
		if v.MetadataString(opts.Field) != opts.From {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		change := RemapChange{VideoID: v.ID, Title: displayTitle(v)}
		if !opts.DryRun {
			updated := maps.Clone(v.UserMetadata)
			updated[opts.Field] = opts.To
			if err := videos.UpdateMetadata(ctx, v.ID, updated); err != nil {
				change.Err = err
				res.Failed++
				logger.Warn("remap failed", "video_id", v.ID, "field", opts.Field, "error", err)
			} else {
				res.Updated++
				logger.Info("remapped", "video_id", v.ID, "field", opts.Field, "from", opts.From, "to", opts.To)
			}
		}
		res.Changes = append(res.Changes, change)
	}
	return res, nil
}

func displayTitle(v cloud.Video) string {
	if t := v.MetadataString(metadata.KeyTitle); t != "" {
		return t
	}
	if v.SystemMetadata.VideoTitle != "" {
		return v.SystemMetadata.VideoTitle
	}
	return v.ID
}
