package api

import (
	"time"

	"github.com/mrnkim/adland-tv/internal/acquire"
	"github.com/mrnkim/adland-tv/internal/checkpoint"
	"github.com/mrnkim/adland-tv/internal/ingest"
	"github.com/mrnkim/adland-tv/internal/ledger"
)

type HealthResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version"`
	UptimeS     int64               `json:"uptime_s"`
	Subscribers int                 `json:"subscribers"`
	Tool        *acquire.ToolStatus `json:"ytdlp,omitempty"`
}

type BatchSummary struct {
	Tag       string      `json:"tag"`
	StartedAt string      `json:"started_at,omitempty"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	LastRun   *ledger.Run `json:"last_run,omitempty"`
}

type BatchesResponse struct {
	Batches []BatchSummary `json:"batches"`
}

type BatchResponse struct {
	BatchSummary
	CompletedItems []checkpoint.CompletedItem `json:"completed_items"`
	FailedItems    []checkpoint.FailedItem    `json:"failed_items"`
	Runs           []*ledger.Run              `json:"runs"`
}

type StartRunRequest struct {
	DryRun      bool `json:"dry_run"`
	Limit       int  `json:"limit"`
	RetryFailed bool `json:"retry_failed"`
}

type StartRunResponse struct {
	RunID string `json:"run_id"`
	Tag   string `json:"tag"`
}

type ActiveRunResponse struct {
	RunID  string `json:"run_id"`
	Tag    string `json:"tag"`
	DryRun bool   `json:"dry_run"`
}

type RunsResponse struct {
	Active *ActiveRunResponse `json:"active,omitempty"`
	Runs   []*ledger.Run      `json:"runs"`
}

type RunResponse struct {
	*ledger.Run
	Items []*ledger.RunItem `json:"items"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ActiveToResponse(st ingest.RunState) *ActiveRunResponse {
	if !st.Active {
		return nil
	}
	return &ActiveRunResponse{RunID: st.RunID, Tag: st.Tag, DryRun: st.DryRun}
}

func summarize(tag string, p *checkpoint.Progress) BatchSummary {
	s := BatchSummary{Tag: tag, Completed: len(p.Completed), Failed: len(p.Failed)}
	if p.StartedAt != nil {
		s.StartedAt = p.StartedAt.UTC().Format(time.RFC3339)
	}
	return s
}
