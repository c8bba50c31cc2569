// Package matcher selects and deduplicates feed entries for a batch.
package matcher

import (
	"strings"
	"unicode"

	"github.com/mrnkim/adland-tv/internal/feed"
)

// DefaultStopwords are selector tokens that carry no meaning for matching.
var DefaultStopwords = []string{"commercials", "the", "and"}

// minKeywordLen is the shortest selector token that counts as a keyword.
const minKeywordLen = 3

// Keywords derives the match keywords of a batch selector: the selector is split
// on '-', lowercased, and tokens shorter than three runes or listed in stopwords
// are dropped.
func Keywords(selector string, stopwords []string) []string {
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	var out []string
	for _, tok := range strings.Split(strings.ToLower(selector), "-") {
		tok = strings.TrimSpace(tok)
		if len([]rune(tok)) < minKeywordLen {
			continue
		}
		if _, ok := stop[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Threshold is the number of keyword hits an entry needs. With zero keywords it
// is zero, so every entry matches.
func Threshold(keywords []string) int {
	return min(2, len(keywords))
}

// Matches reports whether entry satisfies the keyword threshold. A keyword hits
// when it is a substring of the lowercased title or slug.
func Matches(entry feed.Entry, keywords []string) bool {
	title := strings.ToLower(entry.Title)
	slug := strings.ToLower(entry.Slug)

	hits := 0
	for _, kw := range keywords {
		if strings.Contains(title, kw) || strings.Contains(slug, kw) {
			hits++
		}
	}
	return hits >= Threshold(keywords)
}

// FilterByTag returns the entries matching selector, in input order.
func FilterByTag(entries []feed.Entry, selector string, stopwords []string) []feed.Entry {
	keywords := Keywords(selector, stopwords)
	out := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		if Matches(e, keywords) {
			out = append(out, e)
		}
	}
	return out
}

// Normalize canonicalizes a title for comparison: lowercase, keep only ASCII
// letters, digits and whitespace, collapse whitespace runs, trim.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	pendingSpace := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
