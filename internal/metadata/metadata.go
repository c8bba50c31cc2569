// Package metadata models the user metadata stored on indexed assets and
// merges provenance with analysis tags.
package metadata

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mrnkim/adland-tv/internal/analysis"
	"github.com/mrnkim/adland-tv/internal/brand"
)

// Metadata keys.
const (
	KeyTitle       = "title"
	KeyBrand       = "brand"
	KeyDescription = "description"
	KeyCollection  = "collection"
	KeyAuthor      = "author"
	KeySourceURL   = "source_url"
	KeyYoutubeURL  = "youtube_url"
	KeyAdlandTags  = "adland_tags"
	KeyBatchTag    = "batch_tag"
	KeyAnalyzedAt  = "analyzed_at"
)

// maxDescriptionRunes caps the stored description.
const maxDescriptionRunes = 1000

var extraKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Provenance is what the pipeline knows about an asset from its feed entry.
type Provenance struct {
	Title       string
	Brand       string
	SourceURL   string
	Author      string
	BatchTag    string
	Collection  string
	Description string
	AdlandTags  []string
}

// UploadMetadata is the minimal metadata attached when an asset is submitted.
func (p Provenance) UploadMetadata() map[string]string {
	m := map[string]string{
		KeyTitle:     p.Title,
		KeyBrand:     p.Brand,
		KeySourceURL: p.SourceURL,
	}
	if p.Collection != "" {
		m[KeyCollection] = p.Collection
	}
	return m
}

// Asset is the typed form of an asset's user metadata. Extra carries keys
// with no dedicated field.
type Asset struct {
	Title           string
	Brand           string
	Description     string
	Collection      string
	Author          string
	SourceURL       string
	YoutubeURL      string
	AdlandTags      string
	BatchTag        string
	Theme           string
	Emotion         string
	VisualStyle     string
	Sentiment       string
	ProductCategory string
	EraDecade       string
	Celebrities     string
	AnalyzedAt      string
	Extra           map[string]string
}

// fields maps every dedicated key to its field.
func (a *Asset) fields() map[string]*string {
	return map[string]*string{
		KeyTitle:                    &a.Title,
		KeyBrand:                    &a.Brand,
		KeyDescription:              &a.Description,
		KeyCollection:               &a.Collection,
		KeyAuthor:                   &a.Author,
		KeySourceURL:                &a.SourceURL,
		KeyYoutubeURL:               &a.YoutubeURL,
		KeyAdlandTags:               &a.AdlandTags,
		KeyBatchTag:                 &a.BatchTag,
		analysis.KeyTheme:           &a.Theme,
		analysis.KeyEmotion:         &a.Emotion,
		analysis.KeyVisualStyle:     &a.VisualStyle,
		analysis.KeySentiment:       &a.Sentiment,
		analysis.KeyProductCategory: &a.ProductCategory,
		analysis.KeyEraDecade:       &a.EraDecade,
		analysis.KeyCelebrities:     &a.Celebrities,
		KeyAnalyzedAt:               &a.AnalyzedAt,
	}
}

// Get returns the value stored under key.
func (a *Asset) Get(key string) string {
	if f, ok := a.fields()[key]; ok {
		return *f
	}
	return a.Extra[key]
}

// Set stores value under key.
func (a *Asset) Set(key, value string) {
	if f, ok := a.fields()[key]; ok {
		*f = value
		return
	}
	if a.Extra == nil {
		a.Extra = make(map[string]string)
	}
	a.Extra[key] = value
}

// Merge builds the final metadata of an asset. Provenance is applied first and
// analysis tags override it, except for keys the provenance owns: title,
// source URL, batch tag, collection, author and a known brand. analyzed_at is
// stamped with now.
func Merge(p Provenance, r analysis.Result, now time.Time) Asset {
	a := Asset{
		Title:       p.Title,
		Brand:       p.Brand,
		SourceURL:   p.SourceURL,
		Author:      p.Author,
		BatchTag:    p.BatchTag,
		Collection:  p.Collection,
		Description: truncateRunes(p.Description, maxDescriptionRunes),
		AdlandTags:  strings.Join(p.AdlandTags, ", "),
	}

	owned := map[string]bool{
		KeyTitle:      a.Title != "",
		KeySourceURL:  a.SourceURL != "",
		KeyBatchTag:   a.BatchTag != "",
		KeyCollection: a.Collection != "",
		KeyAuthor:     a.Author != "",
		KeyAdlandTags: a.AdlandTags != "",
		KeyBrand:      brand.IsKnown(a.Brand),
		KeyAnalyzedAt: true,
	}
	for k, v := range r.Fields() {
		if owned[k] {
			continue
		}
		a.Set(k, v)
	}

	a.AnalyzedAt = now.UTC().Format(time.RFC3339)
	return a
}

// FromMap converts stored user metadata into an Asset. Non-string values are
// formatted as strings.
func FromMap(m map[string]any) Asset {
	var a Asset
	for k, v := range m {
		switch val := v.(type) {
		case nil:
		case string:
			a.Set(k, val)
		case float64:
			a.Set(k, strconv.FormatFloat(val, 'f', -1, 64))
		case bool:
			a.Set(k, strconv.FormatBool(val))
		default:
			a.Set(k, fmt.Sprint(val))
		}
	}
	return a
}

// Validate checks the fields every ingested asset must carry.
func (a Asset) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, KeyTitle)
	}
	if strings.TrimSpace(a.SourceURL) == "" {
		missing = append(missing, KeySourceURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("metadata missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// InvalidKeys returns Extra keys that cannot be stored, sorted.
func (a Asset) InvalidKeys() []string {
	var bad []string
	for k := range a.Extra {
		if !validExtraKey(k) {
			bad = append(bad, k)
		}
	}
	sort.Strings(bad)
	return bad
}

// Map flattens the asset into the wire form: a flat map of non-empty strings.
// Extra keys that are not lowercase identifiers are dropped.
func (a Asset) Map() map[string]any {
	out := make(map[string]any, 17+len(a.Extra))
	for k, v := range a.Extra {
		if v != "" && validExtraKey(k) {
			out[k] = v
		}
	}
	for k, f := range a.fields() {
		if *f != "" {
			out[k] = *f
		}
	}
	return out
}

func validExtraKey(k string) bool {
	if !extraKeyPattern.MatchString(k) {
		return false
	}
	var probe Asset
	_, dedicated := probe.fields()[k]
	return !dedicated
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
