package cloud

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TaskStatus is the lifecycle state of an indexing task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskValidating TaskStatus = "validating"
	TaskQueued     TaskStatus = "queued"
	TaskIndexing   TaskStatus = "indexing"
	TaskReady      TaskStatus = "ready"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the task will not change state again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskReady || s == TaskFailed
}

// SystemMetadata is the service-derived metadata of an asset.
type SystemMetadata struct {
	Filename   string  `json:"filename,omitempty"`
	VideoTitle string  `json:"video_title,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Size       int64   `json:"size,omitempty"`
}

// Video is an asset in the index.
type Video struct {
	ID             string         `json:"_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	SystemMetadata SystemMetadata `json:"system_metadata"`
	UserMetadata   map[string]any `json:"user_metadata"`
}

// MetadataString returns a user metadata value as a string. Numbers and
// booleans are formatted; missing keys yield "".
func (v Video) MetadataString(key string) string {
	switch val := v.UserMetadata[key].(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// PageInfo describes a page of a paginated listing.
type PageInfo struct {
	Page         int `json:"page"`
	LimitPerPage int `json:"limit_per_page"`
	TotalPage    int `json:"total_page"`
	TotalResults int `json:"total_results"`
}

// VideoPage is one page of assets.
type VideoPage struct {
	Data     []Video  `json:"data"`
	PageInfo PageInfo `json:"page_info"`
}

// TaskRequest describes media to index. Exactly one of FilePath and VideoURL
// must be set.
type TaskRequest struct {
	FilePath          string
	Filename          string
	VideoURL          string
	EnableVideoStream bool
	// UserMetadata is sent as a JSON object string.
	UserMetadata map[string]string
}

// Task is an indexing task.
type Task struct {
	ID        string     `json:"_id"`
	IndexID   string     `json:"index_id,omitempty"`
	VideoID   string     `json:"video_id,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// ResponseFormat constrains analysis output to a JSON schema.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema"`
}

// AnalyzeRequest is the body of an analysis call.
type AnalyzeRequest struct {
	VideoID        string          `json:"video_id"`
	Prompt         string          `json:"prompt"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream"`
}

// AnalyzeResponse is the result of an analysis call. Data is either a JSON
// string holding generated text or a JSON object.
type AnalyzeResponse struct {
	ID           string          `json:"id"`
	Data         json.RawMessage `json:"data"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Usage        struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
