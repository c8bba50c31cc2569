// Package analysis requests schema-constrained tags for indexed assets and
// parses the service's reply into a Result.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mrnkim/adland-tv/internal/cloud"
)

// Analysis keys as they appear in asset metadata.
const (
	KeyTheme           = "theme"
	KeyEmotion         = "emotion"
	KeyVisualStyle     = "visual_style"
	KeySentiment       = "sentiment"
	KeyProductCategory = "product_category"
	KeyEraDecade       = "era_decade"
	KeyCelebrities     = "celebrities"
	KeyBrand           = "brand"
)

// Result holds the tags produced for one asset. Extra carries any other
// scalar fields the service returned.
type Result struct {
	Theme           string
	Emotion         string
	VisualStyle     string
	Sentiment       string
	ProductCategory string
	EraDecade       string
	Celebrities     string
	Brand           string
	Extra           map[string]string
}

// IsEmpty reports whether the result carries no tags.
func (r Result) IsEmpty() bool {
	return len(r.Fields()) == 0
}

// Fields returns the non-empty tags keyed by metadata key.
func (r Result) Fields() map[string]string {
	out := make(map[string]string, 8+len(r.Extra))
	for k, v := range r.Extra {
		if v != "" {
			out[k] = v
		}
	}
	for k, v := range map[string]string{
		KeyTheme:           r.Theme,
		KeyEmotion:         r.Emotion,
		KeyVisualStyle:     r.VisualStyle,
		KeySentiment:       r.Sentiment,
		KeyProductCategory: r.ProductCategory,
		KeyEraDecade:       r.EraDecade,
		KeyCelebrities:     r.Celebrities,
		KeyBrand:           r.Brand,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Summary is a short human-readable form used in logs and reports.
func (r Result) Summary() string {
	var parts []string
	for _, v := range []string{r.Brand, r.Theme, r.Emotion, r.ProductCategory} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

// Parse decodes the data field of an analysis response. Data may be a JSON
// object or a string holding one, optionally wrapped in a markdown code fence.
func Parse(data json.RawMessage) (Result, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return Result{}, errors.New("analysis returned no data")
	}

	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal([]byte(trimmed), &text); err != nil {
			return Result{}, fmt.Errorf("decode analysis text: %w", err)
		}
		trimmed = stripFence(text)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return Result{}, fmt.Errorf("decode analysis object: %w", err)
	}

	var r Result
	for k, v := range fields {
		s, ok := flatten(v)
		if !ok {
			continue
		}
		switch k {
		case KeyTheme:
			r.Theme = s
		case KeyEmotion:
			r.Emotion = s
		case KeyVisualStyle:
			r.VisualStyle = s
		case KeySentiment:
			r.Sentiment = s
		case KeyProductCategory:
			r.ProductCategory = s
		case KeyEraDecade:
			r.EraDecade = s
		case KeyCelebrities:
			r.Celebrities = s
		case KeyBrand:
			r.Brand = s
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[k] = s
		}
	}
	return r, nil
}

// flatten renders a JSON value as a metadata string. Arrays are joined with
// ", "; nested objects are dropped.
func flatten(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := flatten(item); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	default:
		return "", false
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag such as ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Config configures an Analyzer.
type Config struct {
	Prompt       string
	Temperature  float64
	Timeout      time.Duration
	IncludeBrand bool
	Logger       *slog.Logger
}

// Analyzer requests tags for indexed assets.
type Analyzer struct {
	svc    cloud.AnalysisService
	cfg    Config
	schema json.RawMessage
}

func NewAnalyzer(svc cloud.AnalysisService, cfg Config) *Analyzer {
	if cfg.Prompt == "" {
		cfg.Prompt = "Analyze this advertisement and generate structured metadata tags."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{svc: svc, cfg: cfg, schema: Schema(cfg.IncludeBrand)}
}

// Analyze requests tags for videoID. It never fails the caller: on any error
// the returned Result is empty and the error only explains the degradation.
func (a *Analyzer) Analyze(ctx context.Context, videoID string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	resp, err := a.svc.Analyze(ctx, cloud.AnalyzeRequest{
		VideoID:     videoID,
		Prompt:      a.cfg.Prompt,
		Temperature: a.cfg.Temperature,
		ResponseFormat: &cloud.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: a.schema,
		},
	})
	if err != nil {
		a.cfg.Logger.Warn("analysis failed, continuing without tags", "video_id", videoID, "error", err)
		return Result{}, fmt.Errorf("analyze %s: %w", videoID, err)
	}

	r, err := Parse(resp.Data)
	if err != nil {
		a.cfg.Logger.Warn("analysis output unusable, continuing without tags", "video_id", videoID, "error", err)
		return Result{}, fmt.Errorf("analyze %s: %w", videoID, err)
	}

	a.cfg.Logger.Info("analysis complete", "video_id", videoID, "tags", r.Summary(), "extra_keys", sortedKeys(r.Extra))
	return r, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
