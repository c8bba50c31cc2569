// Package ingest runs batch ingestion: discover candidates from the feed,
// then acquire, index, analyze and persist each one, checkpointing after
// every item.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mrnkim/adland-tv/internal/brand"
	"github.com/mrnkim/adland-tv/internal/checkpoint"
	"github.com/mrnkim/adland-tv/internal/cloud"
	"github.com/mrnkim/adland-tv/internal/feed"
	"github.com/mrnkim/adland-tv/internal/indexer"
	"github.com/mrnkim/adland-tv/internal/logging"
	"github.com/mrnkim/adland-tv/internal/matcher"
	"github.com/mrnkim/adland-tv/internal/metadata"
	"github.com/mrnkim/adland-tv/internal/report"
)

// Status is the final state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusDryRun      Status = "dry_run"
	StatusNothingToDo Status = "nothing_to_do"
	StatusAborted     Status = "aborted"
	StatusInterrupted Status = "interrupted"
)

// handoffStatus maps a run status to the label shown in the handoff.
func (s Status) handoffStatus() string {
	switch s {
	case StatusDryRun:
		return report.StatusDryRun
	case StatusNothingToDo:
		return report.StatusNothingToDo
	case StatusAborted:
		return report.StatusAborted
	case StatusInterrupted:
		return report.StatusInterrupted
	default:
		return report.StatusCompleted
	}
}

// Options selects what a run does.
type Options struct {
	Tag    string
	DryRun bool
	// Limit caps the number of items processed; 0 means no limit.
	Limit int
	// Reset discards the batch checkpoint before discovery.
	Reset bool
	// RetryFailed clears recorded failures so those items are attempted again.
	RetryFailed bool
	// RunID is generated when empty.
	RunID string
}

// Plan is the outcome of discovery.
type Plan struct {
	Tag           string
	FeedEntries   int
	EmptyFeed     bool
	// NoSlug counts feed entries dropped for lacking a link to key them by.
	NoSlug        int
	Matched       int
	Unique        int
	IndexedAssets int
	NotIndexed    int
	// Remaining is every candidate left after deduplication, in feed order.
	Remaining []feed.Entry
	// ToProcess is Remaining truncated to the limit; Deferred is the rest.
	ToProcess []feed.Entry
	Deferred  []feed.Entry
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Tag         string
	Status      Status
	Plan        *Plan
	Outcomes    []report.Outcome
	Progress    *checkpoint.Progress
	HandoffPath string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Counts returns this run's counts.
func (r *Result) Counts() Counts {
	c := Counts{}
	if r.Plan != nil {
		c.Discovered = len(r.Plan.Remaining)
		c.Planned = len(r.Plan.ToProcess)
		c.Pending = len(r.Plan.Remaining)
	}
	for _, o := range r.Outcomes {
		if o.OK {
			c.Completed++
		} else {
			c.Failed++
		}
	}
	c.Pending -= c.Completed + c.Failed
	if c.Pending < 0 {
		c.Pending = 0
	}
	return c
}

// Summary converts the result to the console summary.
func (r *Result) Summary() report.Summary {
	s := report.Summary{
		Tag:         r.Tag,
		Outcomes:    r.Outcomes,
		Remaining:   r.Counts().Pending,
		HandoffPath: r.HandoffPath,
	}
	if r.Progress != nil {
		s.TotalCompleted = len(r.Progress.Completed)
		s.TotalFailed = len(r.Progress.Failed)
	}
	return s
}

// Config wires a Pipeline.
type Config struct {
	Feed     FeedSource
	Index    IndexLister
	Acquirer Acquirer
	Indexer  Indexer
	Analyzer Analyzer
	Writer   MetadataWriter
	Store    *checkpoint.Store

	FeedBaseURL string
	Collection  string
	Stopwords   []string
	TagRules    brand.Rules
	// SubmitByURL indexes entries that carry a direct media URL by reference,
	// skipping the download.
	SubmitByURL bool
	// Offline marks a pipeline wired to the offline client; it only plans.
	Offline     bool

	Observer Observer
	Logger   *slog.Logger
}

// Pipeline executes runs. It is not safe for concurrent runs of the same tag;
// Runner serializes runs for long-lived processes.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stopwords == nil {
		cfg.Stopwords = matcher.DefaultStopwords
	}
	if cfg.TagRules == nil {
		cfg.TagRules = brand.DefaultRules
	}
	if cfg.Observer == nil {
		cfg.Observer = ObserverFunc(func(Event) {})
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logging.WithComponent(cfg.Logger, "ingest"),
		now:    time.Now,
	}
}

// Offline reports whether the pipeline can only plan dry runs.
func (p *Pipeline) Offline() bool {
	return p.cfg.Offline
}

// Store returns the checkpoint store the pipeline writes to.
func (p *Pipeline) Store() *checkpoint.Store {
	return p.cfg.Store
}

// Discover fetches the feed and narrows it to the candidates still to be
// ingested for tag. Feed and index failures are returned as errors; an empty
// feed is not an error.
func (p *Pipeline) Discover(ctx context.Context, tag string, progress *checkpoint.Progress, limit int) (*Plan, error) {
	plan := &Plan{Tag: tag}

	entries, err := p.cfg.Feed.Fetch(ctx)
	switch {
	case errors.Is(err, feed.ErrEmptyFeed):
		plan.EmptyFeed = true
		p.logger.Warn("feed has no items", "tag", tag)
	case err != nil:
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	plan.FeedEntries = len(entries)

	entries = p.keyedEntries(entries)
	plan.NoSlug = plan.FeedEntries - len(entries)

	matched := matcher.FilterByTag(entries, tag, p.cfg.Stopwords)
	plan.Matched = len(matched)

	unique := matcher.DedupeFeed(matched)
	plan.Unique = len(unique)

	videos, err := p.cfg.Index.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	plan.IndexedAssets = len(videos)

	notIndexed := matcher.ExcludeIndexed(unique, matcher.NewIndexSet(indexedAssets(videos), p.cfg.FeedBaseURL))
	plan.NotIndexed = len(notIndexed)

	plan.Remaining = matcher.ExcludeSlugs(notIndexed, progress.Done())
	plan.ToProcess, plan.Deferred = matcher.Limit(plan.Remaining, limit)

	p.logger.Info("discovery complete",
		"tag", tag,
		"feed_entries", plan.FeedEntries,
		"matched", plan.Matched,
		"unique", plan.Unique,
		"indexed_assets", plan.IndexedAssets,
		"not_indexed", plan.NotIndexed,
		"remaining", len(plan.Remaining),
		"to_process", len(plan.ToProcess),
	)
	return plan, nil
}

// keyedEntries drops entries without a slug. Progress is keyed by slug, so
// two such entries would overwrite each other in the checkpoint.
func (p *Pipeline) keyedEntries(entries []feed.Entry) []feed.Entry {
	out := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Slug == "" {
			p.logger.Warn("skipping feed entry without a link", "title", e.Title)
			continue
		}
		out = append(out, e)
	}
	return out
}

func indexedAssets(videos []cloud.Video) []matcher.IndexedAsset {
	out := make([]matcher.IndexedAsset, 0, len(videos))
	for _, v := range videos {
		out = append(out, matcher.IndexedAsset{
			ID:          v.ID,
			SourceURL:   v.MetadataString(metadata.KeySourceURL),
			Title:       v.MetadataString(metadata.KeyTitle),
			SystemTitle: v.SystemMetadata.VideoTitle,
		})
	}
	return out
}

// Run executes one batch run. A handoff report is written on every path.
// Per-item failures are recorded in the checkpoint and never returned; the
// returned error is non-nil only for fatal failures and interruption, in
// which case the Result still describes what happened.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := checkpoint.ValidateTag(opts.Tag); err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative: %d", opts.Limit)
	}
	if p.cfg.Offline && !opts.DryRun {
		return nil, ErrRemoteUnavailable
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}

	res := &Result{
		RunID:       opts.RunID,
		Tag:         opts.Tag,
		Status:      StatusRunning,
		HandoffPath: p.cfg.Store.HandoffPath(opts.Tag),
		StartedAt:   p.now().UTC(),
	}
	logger := logging.WithTag(logging.WithRunID(p.logger, opts.RunID), opts.Tag)
	p.emit(res, Event{Type: EventRunStarted, DryRun: opts.DryRun})

	progress, err := p.prepareProgress(opts, logger)
	if err != nil {
		return res, p.abort(res, opts, err, logger)
	}
	res.Progress = progress

	plan, err := p.Discover(ctx, opts.Tag, progress, opts.Limit)
	if err != nil {
		if ctx.Err() != nil {
			return res, p.interrupt(ctx, res, opts, logger)
		}
		return res, p.abort(res, opts, err, logger)
	}
	res.Plan = plan
	p.emit(res, Event{Type: EventRunPlanned, DryRun: opts.DryRun, Total: len(plan.ToProcess), Counts: ptr(res.Counts()), Plan: plan})

	switch {
	case opts.DryRun:
		res.Status = StatusDryRun
		return res, p.finish(res, opts, logger)
	case len(plan.ToProcess) == 0:
		res.Status = StatusNothingToDo
		return res, p.finish(res, opts, logger)
	}

	progress.MarkStarted(res.StartedAt)
	if err := p.cfg.Store.Save(opts.Tag, progress); err != nil {
		return res, p.abort(res, opts, err, logger)
	}

	total := len(plan.ToProcess)
	for i, entry := range plan.ToProcess {
		if ctx.Err() != nil {
			return res, p.interrupt(ctx, res, opts, logger)
		}

		seq := i + 1
		itemLogger := logger.With("seq", seq, "total", total, "slug", entry.Slug)
		itemLogger.Info("processing item", "title", entry.Title)
		p.emit(res, Event{Type: EventItemStarted, Seq: seq, Total: total, Slug: entry.Slug, Title: entry.Title})

		started := p.now()
		out := p.processItem(ctx, res, opts.Tag, seq, total, entry, itemLogger)
		elapsed := p.now().Sub(started)

		if out.err != nil && ctx.Err() != nil {
			// Not recorded: the item is attempted again on the next run.
			itemLogger.Warn("item interrupted", "error", out.err)
			return res, p.interrupt(ctx, res, opts, logger)
		}

		ev := Event{Seq: seq, Total: total, Slug: entry.Slug, Title: entry.Title, Duration: elapsed.Seconds()}
		if out.err != nil {
			reason := out.err.Error()
			progress.Fail(checkpoint.FailedItem{Title: entry.Title, Slug: entry.Slug, Reason: reason})
			res.Outcomes = append(res.Outcomes, report.Outcome{Title: entry.Title, Slug: entry.Slug, Reason: reason})
			itemLogger.Error("item failed", "error", out.err, "duration", elapsed)
			ev.Type, ev.Reason, ev.AssetID = EventItemFailed, reason, out.assetID
		} else {
			progress.Complete(checkpoint.CompletedItem{
				Title:       entry.Title,
				Slug:        entry.Slug,
				AssetID:     out.assetID,
				CompletedAt: p.now().UTC(),
			})
			res.Outcomes = append(res.Outcomes, report.Outcome{Title: entry.Title, Slug: entry.Slug, AssetID: out.assetID, OK: true})
			itemLogger.Info("item completed", "asset_id", out.assetID, "analysis_degraded", out.degraded, "duration", elapsed)
			ev.Type, ev.AssetID, ev.Degraded = EventItemCompleted, out.assetID, out.degraded
		}

		if err := p.cfg.Store.Save(opts.Tag, progress); err != nil {
			return res, p.abort(res, opts, err, logger)
		}
		p.emit(res, ev)
	}

	res.Status = StatusCompleted
	return res, p.finish(res, opts, logger)
}

func (p *Pipeline) prepareProgress(opts Options, logger *slog.Logger) (*checkpoint.Progress, error) {
	if opts.Reset && !opts.DryRun {
		if err := p.cfg.Store.Reset(opts.Tag); err != nil {
			return nil, err
		}
		logger.Info("checkpoint reset")
		return checkpoint.New(), nil
	}

	progress, err := p.cfg.Store.Load(opts.Tag)
	if err != nil {
		return nil, err
	}
	if opts.Reset {
		// Dry runs leave the file alone but plan as if it were gone.
		return checkpoint.New(), nil
	}
	if opts.RetryFailed {
		n := progress.ClearFailed()
		if n > 0 && !opts.DryRun {
			if err := p.cfg.Store.Save(opts.Tag, progress); err != nil {
				return nil, err
			}
		}
		logger.Info("cleared failed items for retry", "count", n)
	}
	return progress, nil
}

type itemOutcome struct {
	assetID  string
	degraded bool
	err      error
}

func (p *Pipeline) processItem(ctx context.Context, res *Result, tag string, seq, total int, entry feed.Entry, logger *slog.Logger) itemOutcome {
	stage := func(name string) {
		p.emit(res, Event{Type: EventItemStage, Seq: seq, Total: total, Slug: entry.Slug, Title: entry.Title, Stage: name})
	}

	src := indexer.Source{Filename: uploadFilename(entry.Title)}
	if entry.MediaURL != "" && p.cfg.SubmitByURL {
		src.URL = entry.MediaURL
		logger.Debug("indexing by reference", "url", entry.MediaURL)
	} else {
		stage(StageAcquire)
		media, err := p.cfg.Acquirer.Acquire(ctx, entry)
		if err != nil {
			return itemOutcome{err: err}
		}
		logger.Debug("media ready", "path", logging.SanitizePath(media.Path), "cached", media.Cached, "size", media.Size)
		src.FilePath = media.Path
	}

	prov := metadata.Provenance{
		Title:       entry.Title,
		Brand:       brand.Extract(entry.Title),
		SourceURL:   entry.Link,
		Author:      entry.Author,
		BatchTag:    tag,
		Collection:  p.cfg.Collection,
		Description: entry.PlainDescription(),
		AdlandTags:  p.cfg.TagRules.Infer(entry.Title, tag),
	}

	stage(StageIndex)
	assetID, err := p.cfg.Indexer.IndexAndWait(ctx, src, prov.UploadMetadata())
	if err != nil {
		return itemOutcome{err: err}
	}

	stage(StageAnalyze)
	result, aerr := p.cfg.Analyzer.Analyze(ctx, assetID)
	if ctx.Err() != nil {
		return itemOutcome{assetID: assetID, err: ctx.Err()}
	}
	degraded := aerr != nil
	if degraded {
		logger.Warn("continuing without analysis tags", "asset_id", assetID, "error", aerr)
	}

	stage(StagePersist)
	asset := metadata.Merge(prov, result, p.now())
	if err := asset.Validate(); err != nil {
		return itemOutcome{assetID: assetID, err: p.discard(ctx, assetID, err, logger)}
	}
	if bad := asset.InvalidKeys(); len(bad) > 0 {
		logger.Warn("dropping metadata keys with invalid names", "keys", bad)
	}
	if err := p.cfg.Writer.UpdateMetadata(ctx, assetID, asset.Map()); err != nil {
		if ctx.Err() != nil {
			return itemOutcome{assetID: assetID, err: ctx.Err()}
		}
		return itemOutcome{assetID: assetID, err: p.discard(ctx, assetID, err, logger)}
	}

	return itemOutcome{assetID: assetID, degraded: degraded}
}

// discard deletes an asset whose metadata could not be saved so that index
// deduplication does not hide the failed item from the next run.
func (p *Pipeline) discard(ctx context.Context, assetID string, cause error, logger *slog.Logger) error {
	perr := &PersistError{AssetID: assetID, Err: cause}
	if err := p.cfg.Writer.Delete(context.WithoutCancel(ctx), assetID); err != nil {
		logger.Warn("failed to delete orphaned asset", "asset_id", assetID, "error", err)
		return perr
	}
	perr.Removed = true
	logger.Info("deleted orphaned asset", "asset_id", assetID)
	return perr
}

// uploadFilename names the uploaded file after the entry so that the
// service-derived video title matches the feed title.
func uploadFilename(title string) string {
	name := strings.TrimSpace(strings.NewReplacer("/", "-", "\\", "-").Replace(title))
	if name == "" {
		name = "untitled"
	}
	return name + ".mp4"
}

func (p *Pipeline) abort(res *Result, opts Options, cause error, logger *slog.Logger) error {
	res.Status = StatusAborted
	logger.Error("run aborted", "error", cause)
	if err := p.finishWith(res, opts, cause.Error(), logger); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Pipeline) interrupt(ctx context.Context, res *Result, opts Options, logger *slog.Logger) error {
	res.Status = StatusInterrupted
	cause := fmt.Errorf("run interrupted: %w", context.Cause(ctx))
	counts := res.Counts()
	logger.Warn("run interrupted", "completed", counts.Completed, "failed", counts.Failed)
	if err := p.finishWith(res, opts, "", logger); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Pipeline) finish(res *Result, opts Options, logger *slog.Logger) error {
	return p.finishWith(res, opts, "", logger)
}

// finishWith writes the handoff and emits the final event.
func (p *Pipeline) finishWith(res *Result, opts Options, errMsg string, logger *slog.Logger) error {
	res.FinishedAt = p.now().UTC()

	h := report.Handoff{
		Tag:       res.Tag,
		RunID:     res.RunID,
		Status:    res.Status.handoffStatus(),
		Error:     errMsg,
		UpdatedAt: res.FinishedAt,
		Pending:   pendingItems(res),
	}
	if res.Progress != nil {
		h.StartedAt = res.Progress.StartedAt
		h.Completed = res.Progress.Completed
		h.Failed = res.Progress.Failed
	}

	var werr error
	if err := report.WriteHandoff(res.HandoffPath, h); err != nil {
		werr = fmt.Errorf("write handoff: %w", err)
		logger.Error("failed to write handoff", "path", res.HandoffPath, "error", err)
	} else {
		logger.Info("handoff written", "path", res.HandoffPath, "status", res.Status)
	}

	p.emit(res, Event{
		Type:   EventRunFinished,
		DryRun: opts.DryRun,
		Status: res.Status,
		Error:  errMsg,
		Counts: ptr(res.Counts()),
	})
	return werr
}

// pendingItems lists the candidates the run did not reach.
func pendingItems(res *Result) []report.PendingItem {
	if res.Plan == nil {
		return nil
	}
	handled := make(map[string]struct{}, len(res.Outcomes))
	for _, o := range res.Outcomes {
		handled[o.Slug] = struct{}{}
	}
	var out []report.PendingItem
	for _, e := range res.Plan.Remaining {
		if _, ok := handled[e.Slug]; ok {
			continue
		}
		out = append(out, report.PendingItem{Title: e.Title, Slug: e.Slug})
	}
	return out
}

func (p *Pipeline) emit(res *Result, e Event) {
	e.RunID = res.RunID
	e.Tag = res.Tag
	if e.Time.IsZero() {
		e.Time = p.now().UTC()
	}
	p.cfg.Observer.Observe(e)
}

func ptr[T any](v T) *T {
	return &v
}
