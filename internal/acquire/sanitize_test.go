package acquire

import (
	"regexp"
	"strings"
	"testing"
)

var safeName = regexp.MustCompile(`^[a-z0-9_-]+$`)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hellmann's 2026 Big Game — 'Meal Diamond'", "hellmanns-2026-big-game-meal-diamond"},
		{"Nike: Just Do It", "nike-just-do-it"},
		{"Coca-Cola - Share a Coke", "coca-cola---share-a-coke"},
		{"snake_case   Title", "snake_case-title"},
	}
	for _, tt := range tests {
		got := SanitizeFilename(tt.title)
		if got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.title, got, tt.want)
		}
		if !safeName.MatchString(got) {
			t.Errorf("SanitizeFilename(%q) = %q contains unsafe characters", tt.title, got)
		}
	}
}

func TestSanitizeFilename_Capped(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("Long Title ", 30))
	if len(got) != MaxFilenameLen {
		t.Errorf("len = %d, want %d", len(got), MaxFilenameLen)
	}
}

func TestSanitizeFilename_EmptyFallback(t *testing.T) {
	a := SanitizeFilename("日本語のタイトル")
	b := SanitizeFilename("日本語のタイトル")
	c := SanitizeFilename("別のタイトル")
	if a != b {
		t.Errorf("fallback not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different titles share a fallback name %q", a)
	}
	if !strings.HasPrefix(a, "untitled-") || !safeName.MatchString(a) {
		t.Errorf("fallback = %q", a)
	}
}
