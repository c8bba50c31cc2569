package matcher

import (
	"github.com/mrnkim/adland-tv/internal/feed"
)

// DedupeFeed collapses entries with equal normalized titles. Each group keeps the
// entry with the shortest slug (the first one on ties) at the position where the
// group first appeared.
func DedupeFeed(entries []feed.Entry) []feed.Entry {
	out := make([]feed.Entry, 0, len(entries))
	pos := make(map[string]int, len(entries))
	for _, e := range entries {
		key := Normalize(e.Title)
		i, seen := pos[key]
		if !seen {
			pos[key] = len(out)
			out = append(out, e)
			continue
		}
		if len(e.Slug) < len(out[i].Slug) {
			out[i] = e
		}
	}
	return out
}

// IndexedAsset is the part of a remote asset used for deduplication.
type IndexedAsset struct {
	ID          string
	SourceURL   string
	Title       string
	SystemTitle string
}

// IndexSet holds the slugs and normalized titles already present in the index.
type IndexSet struct {
	slugs  map[string]struct{}
	titles map[string]struct{}
}

// NewIndexSet builds an IndexSet. Slugs are source URLs with baseURL removed;
// empty keys are ignored.
func NewIndexSet(assets []IndexedAsset, baseURL string) *IndexSet {
	s := &IndexSet{
		slugs:  make(map[string]struct{}, len(assets)),
		titles: make(map[string]struct{}, 2*len(assets)),
	}
	for _, a := range assets {
		if slug := feed.SlugFromLink(a.SourceURL, baseURL); slug != "" {
			s.slugs[slug] = struct{}{}
		}
		for _, t := range []string{a.Title, a.SystemTitle} {
			if n := Normalize(t); n != "" {
				s.titles[n] = struct{}{}
			}
		}
	}
	return s
}

// Contains reports whether entry is already indexed, by slug or normalized title.
func (s *IndexSet) Contains(entry feed.Entry) bool {
	if entry.Slug != "" {
		if _, ok := s.slugs[entry.Slug]; ok {
			return true
		}
	}
	if n := Normalize(entry.Title); n != "" {
		if _, ok := s.titles[n]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of distinct slugs and titles held.
func (s *IndexSet) Len() (slugs, titles int) {
	return len(s.slugs), len(s.titles)
}

// ExcludeIndexed drops entries already present in the index.
func ExcludeIndexed(entries []feed.Entry, index *IndexSet) []feed.Entry {
	out := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if !index.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

// ExcludeSlugs drops entries whose slug is in done.
func ExcludeSlugs(entries []feed.Entry, done map[string]struct{}) []feed.Entry {
	out := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := done[e.Slug]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// Limit truncates entries to n; n <= 0 means no limit.
func Limit(entries []feed.Entry, n int) (kept, rest []feed.Entry) {
	if n <= 0 || n >= len(entries) {
		return entries, nil
	}
	return entries[:n], entries[n:]
}
