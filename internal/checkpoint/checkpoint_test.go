package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_LoadMissingReturnsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "progress"))

	p, err := s.Load("2026-super-bowl-commercials")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.StartedAt != nil || len(p.Completed) != 0 || len(p.Failed) != 0 {
		t.Errorf("Load() = %+v, want empty record", p)
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "progress"))
	now := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

	p := New()
	p.MarkStarted(now)
	p.Complete(CompletedItem{Title: "Nike", Slug: "nike", AssetID: "vid-1", CompletedAt: now})
	p.Fail(FailedItem{Title: "Pepsi", Slug: "pepsi", Reason: "download failed"})

	if err := s.Save("batch", p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(s.Path("batch"))
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"startedAt"`, `"completed"`, `"failed"`, `"videoId": "vid-1"`, `"completedAt"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("progress file missing %s:\n%s", key, raw)
		}
	}

	got, err := s.Load("batch")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}
	if len(got.Completed) != 1 || got.Completed[0].AssetID != "vid-1" {
		t.Errorf("Completed = %+v", got.Completed)
	}
	if len(got.Failed) != 1 || got.Failed[0].Reason != "download failed" {
		t.Errorf("Failed = %+v", got.Failed)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Dir(), ".*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temporary files left behind: %v", matches)
	}
}

func TestProgress_SlugAtMostOnce(t *testing.T) {
	p := New()
	p.Fail(FailedItem{Slug: "a", Reason: "first"})
	p.Fail(FailedItem{Slug: "a", Reason: "second"})
	if len(p.Failed) != 1 || p.Failed[0].Reason != "second" {
		t.Errorf("Failed = %+v", p.Failed)
	}

	p.Complete(CompletedItem{Slug: "a", AssetID: "v"})
	if len(p.Failed) != 0 || len(p.Completed) != 1 {
		t.Errorf("completing should remove the failure: %+v", p)
	}

	p.Fail(FailedItem{Slug: "a", Reason: "late"})
	if len(p.Failed) != 0 {
		t.Errorf("completed slug must not be marked failed: %+v", p.Failed)
	}

	done := p.Done()
	if _, ok := done["a"]; !ok || len(done) != 1 {
		t.Errorf("Done() = %v", done)
	}
}

func TestProgress_MarkStartedOnce(t *testing.T) {
	p := New()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.MarkStarted(first)
	p.MarkStarted(first.Add(time.Hour))
	if !p.StartedAt.Equal(first) {
		t.Errorf("StartedAt = %v, want %v", p.StartedAt, first)
	}
}

func TestStore_LoadNormalizesDuplicates(t *testing.T) {
	s := NewStore(t.TempDir())
	content := `{"completed":[{"title":"A","slug":"a","videoId":"v1","completedAt":"2026-02-09T00:00:00Z"}],
"failed":[{"title":"A","slug":"a","reason":"old"},{"title":"B","slug":"b","reason":"x"},{"title":"B","slug":"b","reason":"y"}]}`
	if err := os.WriteFile(s.Path("legacy"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := s.Load("legacy")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(p.Completed) != 1 || len(p.Failed) != 1 || p.Failed[0].Reason != "y" {
		t.Errorf("normalized progress = %+v", p)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := os.WriteFile(s.Path("bad"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("bad"); err == nil {
		t.Error("Load() should fail on corrupt JSON")
	}
}

func TestStore_ResetAndList(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, tag := range []string{"b-tag", "a-tag"} {
		if err := s.Save(tag, New()); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(s.HandoffPath("a-tag"), []byte("# report"), 0o644); err != nil {
		t.Fatal(err)
	}

	tags, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tags) != 2 || tags[0] != "a-tag" || tags[1] != "b-tag" {
		t.Errorf("List() = %v", tags)
	}

	if err := s.Reset("a-tag"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := s.Reset("a-tag"); err != nil {
		t.Errorf("Reset() of missing file error = %v", err)
	}
	if _, err := os.Stat(s.Path("a-tag")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("progress file still present: %v", err)
	}
}

func TestValidateTag(t *testing.T) {
	valid := []string{"2026-super-bowl-commercials", "cannes_2025", "v1.2"}
	invalid := []string{"", "../etc", "a/b", "-leading", "a..b", strings.Repeat("x", 200)}

	for _, tag := range valid {
		if err := ValidateTag(tag); err != nil {
			t.Errorf("ValidateTag(%q) = %v", tag, err)
		}
	}
	for _, tag := range invalid {
		if err := ValidateTag(tag); !errors.Is(err, ErrInvalidTag) {
			t.Errorf("ValidateTag(%q) = %v, want ErrInvalidTag", tag, err)
		}
	}
	if _, err := NewStore(t.TempDir()).Load("../x"); !errors.Is(err, ErrInvalidTag) {
		t.Errorf("Load() with unsafe tag = %v", err)
	}
}
