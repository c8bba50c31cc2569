// Package cloud talks to the remote video index and analysis service
// (TwelveLabs API v1.3).
package cloud

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Client groups the remote services the ingest pipeline uses.
type Client interface {
	Videos() VideoService
	Tasks() TaskService
	Analysis() AnalysisService
}

// VideoService manages assets stored in the configured index.
type VideoService interface {
	// List returns one page of assets. Pages start at 1.
	List(ctx context.Context, page, pageLimit int) (*VideoPage, error)
	// ListAll walks every page.
	ListAll(ctx context.Context) ([]Video, error)
	// UpdateMetadata replaces the asset's user metadata with metadata.
	UpdateMetadata(ctx context.Context, videoID string, metadata map[string]any) error
	Delete(ctx context.Context, videoID string) error
}

// TaskService creates and inspects indexing tasks.
type TaskService interface {
	Create(ctx context.Context, req TaskRequest) (*Task, error)
	Get(ctx context.Context, taskID string) (*Task, error)
}

// AnalysisService runs open-ended analysis on indexed assets.
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}

// StubClient is an offline client. Listing returns an empty index and every
// mutating call fails with ErrOffline. It lets dry runs work without credentials.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) Videos() VideoService {
	return c
}

func (c *StubClient) Tasks() TaskService {
	return c
}

func (c *StubClient) Analysis() AnalysisService {
	return c
}

func (c *StubClient) List(ctx context.Context, page, pageLimit int) (*VideoPage, error) {
	c.logger.Info("cloud stub: video list requested", "page", page)
	return &VideoPage{PageInfo: PageInfo{Page: page, LimitPerPage: pageLimit, TotalPage: 1}}, nil
}

func (c *StubClient) ListAll(ctx context.Context) ([]Video, error) {
	c.logger.Info("cloud stub: index treated as empty")
	return nil, nil
}

func (c *StubClient) UpdateMetadata(ctx context.Context, videoID string, metadata map[string]any) error {
	return ErrOffline
}

func (c *StubClient) Delete(ctx context.Context, videoID string) error {
	return ErrOffline
}

func (c *StubClient) Create(ctx context.Context, req TaskRequest) (*Task, error) {
	return nil, ErrOffline
}

func (c *StubClient) Get(ctx context.Context, taskID string) (*Task, error) {
	return nil, ErrOffline
}

func (c *StubClient) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	return &AnalyzeResponse{Data: json.RawMessage(`{}`)}, ErrOffline
}
