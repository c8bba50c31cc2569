package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/mrnkim/adland-tv/internal/config"
	"github.com/mrnkim/adland-tv/internal/logging"
	"github.com/mrnkim/adland-tv/internal/maintenance"
)

func runRemap(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts maintenance.RemapOptions
	fs := flag.NewFlagSet("adland-ingest remap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Field, "field", "", "metadata field to rewrite (required)")
	fs.StringVar(&opts.From, "from", "", "current value to match (required)")
	fs.StringVar(&opts.To, "to", "", "replacement value (required)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "list matching assets without updating them")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.Field == "" || opts.From == "" || opts.To == "" {
		fmt.Fprintln(stderr, "usage: adland-ingest remap --field F --from A --to B [--dry-run]")
		return exitUsage
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFatal
	}
	logger := logging.WithComponent(logging.NewLogger(cfg.LogLevel(), cfg.LogFormat()), "remap")
	opts.Logger = logger

	client, err := newClient(cfg, logger, false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	res, err := maintenance.Remap(ctx, client.Videos(), opts)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		if errors.Is(err, context.Canceled) {
			return exitInterrupted
		}
		return exitFatal
	}

	verb := "Updated"
	if opts.DryRun {
		verb = "Would update"
	}
	fmt.Fprintf(stdout, "Scanned %d assets, %d with %s=%q\n", res.Scanned, len(res.Changes), opts.Field, opts.From)
	for _, c := range res.Changes {
		if c.Err != nil {
			fmt.Fprintf(stdout, "  FAIL %s (%s): %v\n", c.Title, c.VideoID, c.Err)
			continue
		}
		fmt.Fprintf(stdout, "  %s %s (%s)\n", verb, c.Title, c.VideoID)
	}
	if opts.DryRun {
		fmt.Fprintf(stdout, "Dry run: %d assets would change\n", len(res.Changes))
		return exitOK
	}
	fmt.Fprintf(stdout, "Updated: %d, failed: %d\n", res.Updated, res.Failed)
	return exitOK
}
