package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPageLimit is the page size used when walking the index.
	DefaultPageLimit = 50

	// maxPages bounds ListAll against a service that never stops paginating.
	maxPages = 1000

	maxErrorBody = 4096
)

// Config configures an HTTPClient.
type Config struct {
	BaseURL    string
	APIKey     string
	IndexID    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HTTPClient is the production Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	indexID    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(cfg Config) *HTTPClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		indexID:    cfg.IndexID,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *HTTPClient) Videos() VideoService {
	return c
}

func (c *HTTPClient) Tasks() TaskService {
	return c
}

func (c *HTTPClient) Analysis() AnalysisService {
	return c
}

// IndexID returns the index this client operates on.
func (c *HTTPClient) IndexID() string {
	return c.indexID
}

func (c *HTTPClient) List(ctx context.Context, page, pageLimit int) (*VideoPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_limit", strconv.Itoa(pageLimit))
	path := fmt.Sprintf("/indexes/%s/videos?%s", url.PathEscape(c.indexID), q.Encode())

	var out VideoPage
	if err := c.doJSON(ctx, "list videos", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListAll(ctx context.Context) ([]Video, error) {
	var all []Video
	for page := 1; page <= maxPages; page++ {
		res, err := c.List(ctx, page, DefaultPageLimit)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, res.Data...)
		if page >= res.PageInfo.TotalPage || len(res.Data) == 0 {
			break
		}
	}
	c.logger.Info("index listed", "index_id", c.indexID, "videos", len(all))
	return all, nil
}

func (c *HTTPClient) UpdateMetadata(ctx context.Context, videoID string, metadata map[string]any) error {
	body, err := json.Marshal(map[string]any{"user_metadata": metadata})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	path := fmt.Sprintf("/indexes/%s/videos/%s", url.PathEscape(c.indexID), url.PathEscape(videoID))
	return c.doJSON(ctx, "update metadata", http.MethodPut, path, bytes.NewReader(body), nil)
}

func (c *HTTPClient) Delete(ctx context.Context, videoID string) error {
	path := fmt.Sprintf("/indexes/%s/videos/%s", url.PathEscape(c.indexID), url.PathEscape(videoID))
	return c.doJSON(ctx, "delete video", http.MethodDelete, path, nil, nil)
}

// Create submits an indexing task. Local files are streamed as multipart
// without buffering the whole file in memory.
func (c *HTTPClient) Create(ctx context.Context, req TaskRequest) (*Task, error) {
	if (req.FilePath == "") == (req.VideoURL == "") {
		return nil, fmt.Errorf("create task: exactly one of file path and video url is required")
	}

	var metaJSON []byte
	if len(req.UserMetadata) > 0 {
		var err error
		if metaJSON, err = json.Marshal(req.UserMetadata); err != nil {
			return nil, fmt.Errorf("marshal user metadata: %w", err)
		}
	}

	var file *os.File
	if req.FilePath != "" {
		var err error
		if file, err = os.Open(req.FilePath); err != nil {
			return nil, fmt.Errorf("open media: %w", err)
		}
		defer file.Close()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTaskForm(mw, c.indexID, req, metaJSON, file))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Info("submitting indexing task",
		"index_id", c.indexID,
		"filename", req.Filename,
		"video_url", req.VideoURL,
	)

	var task Task
	if err := c.send(httpReq, "create task", &task); err != nil {
		pr.Close()
		return nil, err
	}
	if task.ID == "" {
		return nil, fmt.Errorf("create task: response carried no task id")
	}
	return &task, nil
}

func writeTaskForm(mw *multipart.Writer, indexID string, req TaskRequest, metaJSON []byte, file *os.File) error {
	fields := [][2]string{
		{"index_id", indexID},
		{"enable_video_stream", strconv.FormatBool(req.EnableVideoStream)},
	}
	if req.VideoURL != "" {
		fields = append(fields, [2]string{"video_url", req.VideoURL})
	}
	if len(metaJSON) > 0 {
		fields = append(fields, [2]string{"user_metadata", string(metaJSON)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	if file != nil {
		name := req.Filename
		if name == "" {
			name = filepath.Base(req.FilePath)
		}
		part, err := mw.CreateFormFile("video_file", name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (c *HTTPClient) Get(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.doJSON(ctx, "get task", http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *HTTPClient) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}
	var out AnalyzeResponse
	if err := c.doJSON(ctx, "analyze", http.MethodPost, "/analyze", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, op, out)
}

func (c *HTTPClient) send(req *http.Request, op string, out any) error {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cloud request",
		"op", op,
		"method", req.Method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
