// Package brand derives brand names and batch tags from ad titles.
package brand

import (
	"fmt"
	"regexp"
	"strings"
)

// Unknown is returned when no brand can be derived from a title.
const Unknown = "Unknown"

var (
	campaignSuffix = regexp.MustCompile(`(?i)\s*-?\s*Super Bowl.*$`)
	colonPrefix    = regexp.MustCompile(`^([^:]+):`)
	dashPrefix     = regexp.MustCompile(`^(.+?)\s+-\s+`)
)

// Extract returns the brand named by an ad title. Campaign suffixes such as
// "- Super Bowl LX" are removed first so subtitles after them are ignored.
// Then the text before the first colon, or before the first " - ", is taken;
// otherwise the whole cleaned title. Empty results become Unknown.
func Extract(title string) string {
	cleaned := campaignSuffix.ReplaceAllString(title, "")

	if m := colonPrefix.FindStringSubmatch(cleaned); m != nil {
		return orUnknown(m[1])
	}
	if m := dashPrefix.FindStringSubmatch(cleaned); m != nil {
		return orUnknown(m[1])
	}
	return orUnknown(cleaned)
}

// IsKnown reports whether b is a real brand rather than a placeholder.
func IsKnown(b string) bool {
	b = strings.TrimSpace(b)
	return b != "" && b != Unknown
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

// Rule maps a title pattern, optionally combined with an edition marker, to a
// canonical tag label. The marker is tested against the title followed by the
// batch selector.
type Rule struct {
	Label  string
	Title  *regexp.Regexp
	Marker *regexp.Regexp
}

// Rules is an ordered rule table.
type Rules []Rule

// DefaultRules is the built-in table.
var DefaultRules = Rules{
	{
		Label:  "2026 Super Bowl LX",
		Title:  regexp.MustCompile(`(?i)super\s*bowl`),
		Marker: regexp.MustCompile(`(?i)2026|lx`),
	},
}

// NewRule compiles a rule. Patterns are case-insensitive; an empty marker
// pattern means the title pattern alone decides.
func NewRule(label, titlePattern, markerPattern string) (Rule, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Rule{}, fmt.Errorf("tag rule has no label")
	}
	if titlePattern == "" {
		return Rule{}, fmt.Errorf("tag rule %q has no title pattern", label)
	}
	title, err := regexp.Compile("(?i)" + titlePattern)
	if err != nil {
		return Rule{}, fmt.Errorf("tag rule %q: title pattern: %w", label, err)
	}
	r := Rule{Label: label, Title: title}
	if markerPattern != "" {
		r.Marker, err = regexp.Compile("(?i)" + markerPattern)
		if err != nil {
			return Rule{}, fmt.Errorf("tag rule %q: marker pattern: %w", label, err)
		}
	}
	return r, nil
}

// Matches reports whether the rule applies.
func (r Rule) Matches(title, selector string) bool {
	if r.Title == nil || !r.Title.MatchString(title) {
		return false
	}
	return r.Marker == nil || r.Marker.MatchString(title+selector)
}

// Infer returns the labels of every matching rule in table order, without
// duplicates. No match yields nil.
func (rs Rules) Infer(title, selector string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range rs {
		if !r.Matches(title, selector) {
			continue
		}
		if _, dup := seen[r.Label]; dup {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	return out
}
