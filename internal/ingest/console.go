package ingest

import (
	"fmt"
	"io"
	"strings"
)

var consoleRule = strings.Repeat("=", 60)

// Console prints human-readable progress lines for a run.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Observe(e Event) {
	switch e.Type {
	case EventRunPlanned:
		if e.Plan != nil {
			fmt.Fprintln(c.w)
			WritePlan(c.w, e.Plan, e.DryRun)
		}
	case EventItemStarted:
		fmt.Fprintf(c.w, "\n%s\n[%d/%d] %s\n%s\n", consoleRule, e.Seq, e.Total, e.Title, consoleRule)
	case EventItemStage:
		fmt.Fprintf(c.w, "   %s...\n", stageLabel(e.Stage))
	case EventItemCompleted:
		if e.Degraded {
			fmt.Fprintf(c.w, "   Done: %s (no analysis tags)\n", e.AssetID)
			return
		}
		fmt.Fprintf(c.w, "   Done: %s\n", e.AssetID)
	case EventItemFailed:
		fmt.Fprintf(c.w, "   Failed: %s\n", e.Reason)
	}
}

func stageLabel(stage string) string {
	switch stage {
	case StageAcquire:
		return "Downloading"
	case StageIndex:
		return "Indexing"
	case StageAnalyze:
		return "Analyzing"
	case StagePersist:
		return "Saving metadata"
	default:
		return stage
	}
}

// WritePlan prints the discovery funnel and the candidates to process.
func WritePlan(w io.Writer, plan *Plan, dryRun bool) {
	fmt.Fprintf(w, "Feed entries:        %d\n", plan.FeedEntries)
	if plan.NoSlug > 0 {
		fmt.Fprintf(w, "Without a link:      %d (skipped)\n", plan.NoSlug)
	}
	fmt.Fprintf(w, "Matching tag:        %d\n", plan.Matched)
	fmt.Fprintf(w, "After feed dedup:    %d\n", plan.Unique)
	fmt.Fprintf(w, "Already indexed:     %d assets\n", plan.IndexedAssets)
	fmt.Fprintf(w, "Not yet indexed:     %d\n", plan.NotIndexed)
	fmt.Fprintf(w, "Remaining:           %d\n", len(plan.Remaining))
	fmt.Fprintf(w, "To process this run: %d\n", len(plan.ToProcess))

	if !dryRun {
		return
	}
	fmt.Fprintln(w, "\nDry run, nothing will be downloaded or indexed:")
	for i, e := range plan.ToProcess {
		fmt.Fprintf(w, "  %d. %s\n", i+1, e.Title)
	}
	if n := len(plan.Deferred); n > 0 {
		fmt.Fprintf(w, "  ... and %d more beyond the limit\n", n)
	}
}
