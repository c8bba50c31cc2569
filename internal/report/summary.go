package report

import (
	"fmt"
	"io"
	"strings"
)

// Outcome is the result of one processed item.
type Outcome struct {
	Title   string
	Slug    string
	AssetID string
	Reason  string
	OK      bool
}

// Summary is the end-of-run console summary.
type Summary struct {
	Tag            string
	Outcomes       []Outcome
	Remaining      int
	TotalCompleted int
	TotalFailed    int
	HandoffPath    string
}

var rule = strings.Repeat("=", 60)

// WriteSummary prints the run summary: counts, one line per item and the
// resume command when work remains.
func WriteSummary(w io.Writer, s Summary) {
	ok, failed := 0, 0
	for _, o := range s.Outcomes {
		if o.OK {
			ok++
		} else {
			failed++
		}
	}

	fmt.Fprintf(w, "\n%s\nSummary\n%s\n", rule, rule)
	fmt.Fprintf(w, "Successful: %d\n", ok)
	fmt.Fprintf(w, "Failed:     %d\n", failed)
	fmt.Fprintf(w, "Remaining:  %d\n", s.Remaining)
	for _, o := range s.Outcomes {
		switch {
		case o.OK:
			fmt.Fprintf(w, "  OK   %s (%s)\n", o.Title, o.AssetID)
		default:
			fmt.Fprintf(w, "  FAIL %s (%s)\n", o.Title, o.Reason)
		}
	}
	if s.Remaining > 0 {
		fmt.Fprintf(w, "\nResume with: %s\n", ResumeCommand(s.Tag))
	}
	fmt.Fprintf(w, "Total progress: %d completed, %d failed\n", s.TotalCompleted, s.TotalFailed)
	if s.HandoffPath != "" {
		fmt.Fprintf(w, "Handoff saved: %s\n", s.HandoffPath)
	}
}
