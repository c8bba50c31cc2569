// Package report renders the Markdown handoff written after every run and the
// console summary.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/mrnkim/adland-tv/internal/checkpoint"
)

// Run statuses shown in the handoff.
const (
	StatusCompleted   = "completed"
	StatusDryRun      = "dry run"
	StatusNothingToDo = "nothing to do"
	StatusAborted     = "aborted"
	StatusInterrupted = "interrupted"
)

// PendingItem is a candidate not yet processed.
type PendingItem struct {
	Title string
	Slug  string
}

// Handoff is everything the handoff report shows.
type Handoff struct {
	Tag       string
	RunID     string
	Status    string
	Error     string
	StartedAt *time.Time
	UpdatedAt time.Time
	Completed []checkpoint.CompletedItem
	Failed    []checkpoint.FailedItem
	Pending   []PendingItem
}

// ResumeCommand returns the command that continues the batch.
func ResumeCommand(tag string) string {
	return fmt.Sprintf("adland-ingest --tag %q", tag)
}

var handoffTemplate = template.Must(template.New("handoff").Funcs(template.FuncMap{
	"resume": ResumeCommand,
	"ts":     formatTime,
	"oneline": func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	},
}).Parse(`# Handoff: adland-ingest --tag "{{.Tag}}"

## Status
- **Run:** {{.Status}}{{with .RunID}} ({{.}}){{end}}
{{- with .Error}}
- **Error:** {{oneline .}}
{{- end}}
- **Started:** {{if .StartedAt}}{{ts .StartedAt}}{{else}}N/A{{end}}
- **Last updated:** {{ts .UpdatedAt}}
- **Completed:** {{len .Completed}}
- **Failed:** {{len .Failed}}
- **Pending:** {{len .Pending}}

## Resume Command
` + "```bash" + `
{{resume .Tag}}
` + "```" + `

## Completed
{{range .Completed}}- [x] {{oneline .Title}} ({{.AssetID}})
{{else}}(none)
{{end}}
## Failed
{{range .Failed}}- [ ] {{oneline .Title}} ({{oneline .Reason}})
{{else}}(none)
{{end}}
## Pending
{{range .Pending}}- [ ] {{oneline .Title}}
{{else}}(none)
{{end}}`))

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return "N/A"
		}
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Render writes the handoff Markdown to w.
func Render(w io.Writer, h Handoff) error {
	return handoffTemplate.Execute(w, h)
}

// WriteHandoff renders h and atomically replaces the file at path.
func WriteHandoff(path string, h Handoff) error {
	var buf bytes.Buffer
	if err := Render(&buf, h); err != nil {
		return fmt.Errorf("render handoff: %w", err)
	}
	if err := checkpoint.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write handoff: %w", err)
	}
	return nil
}
