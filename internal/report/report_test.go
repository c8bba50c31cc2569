package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrnkim/adland-tv/internal/checkpoint"
)

func TestRender_Full(t *testing.T) {
	started := time.Date(2026, 2, 9, 1, 0, 0, 0, time.UTC)
	h := Handoff{
		Tag:       "2026-super-bowl-commercials",
		RunID:     "01JRUN",
		Status:    StatusCompleted,
		StartedAt: &started,
		UpdatedAt: time.Date(2026, 2, 9, 2, 0, 0, 0, time.UTC),
		Completed: []checkpoint.CompletedItem{{Title: "Nike: Dream", AssetID: "vid-1"}},
		Failed:    []checkpoint.FailedItem{{Title: "Pepsi", Reason: "download failed: exit 1:\nERROR"}},
		Pending:   []PendingItem{{Title: "Coke", Slug: "coke"}, {Title: "Doritos", Slug: "doritos"}},
	}

	var buf bytes.Buffer
	if err := Render(&buf, h); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`# Handoff: adland-ingest --tag "2026-super-bowl-commercials"`,
		"- **Run:** completed (01JRUN)",
		"- **Started:** 2026-02-09T01:00:00Z",
		"- **Last updated:** 2026-02-09T02:00:00Z",
		"- **Completed:** 1",
		"- **Failed:** 1",
		"- **Pending:** 2",
		"```bash\nadland-ingest --tag \"2026-super-bowl-commercials\"\n```",
		"- [x] Nike: Dream (vid-1)",
		"- [ ] Pepsi (download failed: exit 1: ERROR)",
		"- [ ] Coke\n- [ ] Doritos\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("handoff missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "(none)") || strings.Contains(out, "**Error:**") {
		t.Errorf("unexpected placeholder:\n%s", out)
	}
}

func TestRender_EmptySections(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Handoff{Tag: "t", Status: StatusAborted, Error: "fetch feed: status 502", UpdatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "(none)") != 3 {
		t.Errorf("want three (none) placeholders:\n%s", out)
	}
	if !strings.Contains(out, "- **Started:** N/A") || !strings.Contains(out, "- **Error:** fetch feed: status 502") {
		t.Errorf("status block wrong:\n%s", out)
	}
}

func TestWriteHandoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress", "t-handoff.md")
	if err := WriteHandoff(path, Handoff{Tag: "t", Status: StatusDryRun, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("WriteHandoff() error = %v", err)
	}
	if err := WriteHandoff(path, Handoff{Tag: "t", Status: StatusCompleted, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("WriteHandoff() overwrite error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "- **Run:** completed") {
		t.Errorf("handoff not overwritten:\n%s", data)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, Summary{
		Tag: "t",
		Outcomes: []Outcome{
			{Title: "A", AssetID: "v1", OK: true},
			{Title: "B", Reason: "download failed"},
		},
		Remaining:      3,
		TotalCompleted: 4,
		TotalFailed:    1,
	})
	out := buf.String()
	for _, want := range []string{
		"Successful: 1", "Failed:     1", "Remaining:  3",
		"  OK   A (v1)", "  FAIL B (download failed)",
		`Resume with: adland-ingest --tag "t"`,
		"Total progress: 4 completed, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
