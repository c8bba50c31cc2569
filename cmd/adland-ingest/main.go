package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrnkim/adland-tv/internal/acquire"
	"github.com/mrnkim/adland-tv/internal/analysis"
	"github.com/mrnkim/adland-tv/internal/brand"
	"github.com/mrnkim/adland-tv/internal/checkpoint"
	"github.com/mrnkim/adland-tv/internal/cloud"
	"github.com/mrnkim/adland-tv/internal/config"
	"github.com/mrnkim/adland-tv/internal/db"
	"github.com/mrnkim/adland-tv/internal/feed"
	"github.com/mrnkim/adland-tv/internal/indexer"
	"github.com/mrnkim/adland-tv/internal/ingest"
	"github.com/mrnkim/adland-tv/internal/ledger"
	"github.com/mrnkim/adland-tv/internal/logging"
	"github.com/mrnkim/adland-tv/internal/report"
)

var Version = "0.1.0"

const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			return runServe(ctx, args[1:], stdout, stderr)
		case "remap":
			return runRemap(ctx, args[1:], stdout, stderr)
		}
	}
	return runIngest(ctx, args, stdout, stderr)
}

type ingestFlags struct {
	tag         string
	dryRun      bool
	limit       int
	reset       bool
	retryFailed bool
}

func parseIngestFlags(args []string, stderr io.Writer) (ingestFlags, int, bool) {
	var f ingestFlags
	fs := flag.NewFlagSet("adland-ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.tag, "tag", "", "batch tag; also the title keywords to match (required)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "plan only: list candidates without downloading or indexing")
	fs.IntVar(&f.limit, "limit", 0, "process at most N candidates (0 = all)")
	fs.BoolVar(&f.reset, "reset", false, "discard the batch checkpoint before planning")
	fs.BoolVar(&f.retryFailed, "retry-failed", false, "retry entries recorded as failed")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: adland-ingest --tag <tag> [--dry-run] [--limit N] [--reset] [--retry-failed]")
		fmt.Fprintln(stderr, "       adland-ingest serve")
		fmt.Fprintln(stderr, "       adland-ingest remap --field F --from A --to B [--dry-run]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return f, exitOK, false
		}
		return f, exitUsage, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return f, exitUsage, false
	}
	if f.tag == "" {
		fmt.Fprintln(stderr, "--tag is required")
		fs.Usage()
		return f, exitUsage, false
	}
	if err := checkpoint.ValidateTag(f.tag); err != nil {
		fmt.Fprintln(stderr, err)
		return f, exitUsage, false
	}
	if f.limit < 0 {
		fmt.Fprintln(stderr, "--limit must not be negative")
		return f, exitUsage, false
	}
	return f, exitOK, true
}

func runIngest(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, code, ok := parseIngestFlags(args, stderr)
	if !ok {
		return code
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFatal
	}
	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())

	client, err := newClient(cfg, logger, f.dryRun)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	observers := []ingest.Observer{ingest.NewConsole(stdout)}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		logger.Warn("run ledger unavailable, continuing without it", "error", err)
	} else {
		defer database.Close()
		observers = append(observers, ledger.NewRecorder(ledger.NewRepository(database.Conn()), logger))
	}

	c, err := newPipeline(cfg, client, ingest.NewBroadcaster(logger, observers...), logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	printRunBanner(stdout, cfg, f, client)
	if !f.dryRun {
		if st := c.doctor.Refresh(ctx); !st.Available {
			logger.Warn("yt-dlp unavailable, downloads will fail", "path", st.Path, "error", st.Error)
		}
	}

	res, err := c.pipeline.Run(ctx, ingest.Options{
		Tag:         f.tag,
		DryRun:      f.dryRun,
		Limit:       f.limit,
		Reset:       f.reset,
		RetryFailed: f.retryFailed,
	})
	if res != nil {
		printResult(stdout, res)
	}
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(stderr, "\nInterrupted. Resume with: %s\n", report.ResumeCommand(f.tag))
		return exitInterrupted
	default:
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return exitFatal
	}
}

// newClient returns the remote index client. Dry runs fall back to the
// offline stub when credentials are missing.
func newClient(cfg config.Config, logger *slog.Logger, dryRun bool) (cloud.Client, error) {
	if err := cfg.RequireRemote(); err != nil {
		if !dryRun {
			return nil, err
		}
		logger.Warn("remote credentials missing, planning against an empty index", "error", err)
		return cloud.NewStubClient(logger), nil
	}
	logger.Info("remote index configured",
		"base_url", cfg.APIBaseURL(),
		"index_id", cfg.IndexID(),
		"api_key", logging.SanitizeToken(cfg.APIKey()),
	)
	return cloud.NewHTTPClient(cloud.Config{
		BaseURL: cfg.APIBaseURL(),
		APIKey:  cfg.APIKey(),
		IndexID: cfg.IndexID(),
		Logger:  logger,
	}), nil
}

// components is the wired pipeline plus the parts the server reports on.
type components struct {
	pipeline   *ingest.Pipeline
	doctor     *acquire.CachedDoctor
	downloader *acquire.Downloader
}

func newPipeline(cfg config.Config, client cloud.Client, observer ingest.Observer, logger *slog.Logger) (*components, error) {
	rules, err := tagRules(cfg.TagRules())
	if err != nil {
		return nil, err
	}

	ytdlp := acquire.NewRunner(acquire.Config{
		Path:       cfg.YtDlpPath(),
		Logger:     logger,
		DebugPaths: logging.ParseLevel(cfg.LogLevel()) == slog.LevelDebug,
	})
	doctor := acquire.NewCachedDoctor(ytdlp, cfg.YtDlpPath(), logger)
	downloader := acquire.NewDownloader(ytdlp, acquire.DownloaderConfig{
		Dir:     cfg.DownloadDir(),
		Timeout: cfg.AcquireTimeout(),
		Logger:  logger,
	})

	_, offline := client.(*cloud.StubClient)
	pipeline := ingest.New(ingest.Config{
		Feed: feed.NewReader(feed.Config{
			URL:     cfg.FeedURL(),
			BaseURL: cfg.FeedBaseURL(),
			Timeout: cfg.FeedTimeout(),
			Logger:  logger,
		}),
		Index: client.Videos(),
		Acquirer: downloader,
		Indexer: indexer.New(client.Tasks(), indexer.Config{
			PollInterval:      cfg.PollInterval(),
			Timeout:           cfg.IndexTimeout(),
			MaxAttempts:       cfg.MaxPollAttempts(),
			EnableVideoStream: true,
			Logger:            logger,
		}),
		Analyzer: analysis.NewAnalyzer(client.Analysis(), analysis.Config{
			Prompt:       cfg.AnalyzePrompt(),
			Temperature:  cfg.AnalyzeTemperature(),
			Timeout:      cfg.AnalyzeTimeout(),
			IncludeBrand: cfg.AnalyzeIncludeBrand(),
			Logger:       logger,
		}),
		Writer:      client.Videos(),
		Store:       checkpoint.NewStore(cfg.ProgressDir()),
		FeedBaseURL: cfg.FeedBaseURL(),
		Collection:  cfg.Collection(),
		Stopwords:   cfg.Stopwords(),
		TagRules:    rules,
		SubmitByURL: cfg.SubmitByURL(),
		Offline:     offline,
		Observer:    observer,
		Logger:      logger,
	})
	return &components{pipeline: pipeline, doctor: doctor, downloader: downloader}, nil
}

// tagRules compiles configured rules; none configured means the built-in table.
func tagRules(in []config.TagRule) (brand.Rules, error) {
	if len(in) == 0 {
		return nil, nil
	}
	rules := make(brand.Rules, 0, len(in))
	for _, r := range in {
		rule, err := brand.NewRule(r.Label, r.TitlePattern, r.MarkerPattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func printRunBanner(w io.Writer, cfg config.Config, f ingestFlags, client cloud.Client) {
	mode := "ingest"
	if f.dryRun {
		mode = "dry run"
	}
	index := cfg.IndexID()
	if _, offline := client.(*cloud.StubClient); offline {
		index = "(offline)"
	}
	limit := "all"
	if f.limit > 0 {
		limit = fmt.Sprint(f.limit)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  ADLAND INGEST v%-42s║\n", Version)
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Tag:      %-47s║\n", f.tag)
	fmt.Fprintf(w, "║  Mode:     %-47s║\n", mode)
	fmt.Fprintf(w, "║  Limit:    %-47s║\n", limit)
	fmt.Fprintf(w, "║  Index:    %-47s║\n", index)
	fmt.Fprintf(w, "║  Progress: %-47s║\n", logging.SanitizePath(cfg.ProgressDir()))
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
}

func printResult(w io.Writer, res *ingest.Result) {
	switch res.Status {
	case ingest.StatusDryRun:
		fmt.Fprintf(w, "\nDry run complete. Handoff saved: %s\n", res.HandoffPath)
	case ingest.StatusNothingToDo:
		fmt.Fprintf(w, "\nNothing to do for %q. Handoff saved: %s\n", res.Tag, res.HandoffPath)
	case ingest.StatusAborted:
		if res.Plan != nil {
			report.WriteSummary(w, res.Summary())
		}
	default:
		report.WriteSummary(w, res.Summary())
	}
}
