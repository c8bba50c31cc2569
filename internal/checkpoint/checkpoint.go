// Package checkpoint persists per-batch ingestion progress as JSON files so a
// batch can be resumed after a crash or interruption.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrInvalidTag is returned for batch tags that are unsafe as file names.
var ErrInvalidTag = errors.New("invalid batch tag")

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// CompletedItem records a successfully ingested entry.
type CompletedItem struct {
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	AssetID     string    `json:"videoId"`
	CompletedAt time.Time `json:"completedAt"`
}

// FailedItem records an entry whose ingestion failed.
type FailedItem struct {
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Reason string `json:"reason"`
}

// Progress is the durable progress record of one batch.
// A slug appears at most once across Completed and Failed.
type Progress struct {
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	Completed []CompletedItem `json:"completed"`
	Failed    []FailedItem    `json:"failed"`
}

// New returns an empty record.
func New() *Progress {
	return &Progress{Completed: []CompletedItem{}, Failed: []FailedItem{}}
}

// MarkStarted sets StartedAt if it is not already set.
func (p *Progress) MarkStarted(now time.Time) {
	if p.StartedAt == nil {
		t := now.UTC()
		p.StartedAt = &t
	}
}

// Complete records slug as completed, replacing any failure for it.
func (p *Progress) Complete(item CompletedItem) {
	p.removeFailed(item.Slug)
	for i, c := range p.Completed {
		if c.Slug == item.Slug {
			p.Completed[i] = item
			return
		}
	}
	p.Completed = append(p.Completed, item)
}

// Fail records slug as failed. A slug already completed is left alone.
func (p *Progress) Fail(item FailedItem) {
	if p.IsCompleted(item.Slug) {
		return
	}
	for i, f := range p.Failed {
		if f.Slug == item.Slug {
			p.Failed[i] = item
			return
		}
	}
	p.Failed = append(p.Failed, item)
}

// ClearFailed drops every failure record and returns how many were removed.
func (p *Progress) ClearFailed() int {
	n := len(p.Failed)
	p.Failed = []FailedItem{}
	return n
}

// IsCompleted reports whether slug is recorded as completed.
func (p *Progress) IsCompleted(slug string) bool {
	for _, c := range p.Completed {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// Done returns the set of slugs recorded in either list.
func (p *Progress) Done() map[string]struct{} {
	done := make(map[string]struct{}, len(p.Completed)+len(p.Failed))
	for _, c := range p.Completed {
		done[c.Slug] = struct{}{}
	}
	for _, f := range p.Failed {
		done[f.Slug] = struct{}{}
	}
	return done
}

func (p *Progress) removeFailed(slug string) {
	kept := p.Failed[:0]
	for _, f := range p.Failed {
		if f.Slug != slug {
			kept = append(kept, f)
		}
	}
	p.Failed = kept
}

// normalize restores the at-most-once invariant on records written by hand or
// by older tools: completed wins over failed, later duplicates win.
func (p *Progress) normalize() {
	completed, failed := p.Completed, p.Failed
	p.Completed, p.Failed = []CompletedItem{}, []FailedItem{}
	for _, c := range completed {
		p.Complete(c)
	}
	for _, f := range failed {
		p.Fail(f)
	}
}

// Store reads and writes progress files under a directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateTag checks that tag is usable as a file name.
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) || strings.Contains(tag, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	return nil
}

// Path returns the progress file path for tag.
func (s *Store) Path(tag string) string {
	return filepath.Join(s.dir, tag+".json")
}

// HandoffPath returns the handoff report path for tag.
func (s *Store) HandoffPath(tag string) string {
	return filepath.Join(s.dir, tag+"-handoff.md")
}

// Load returns the progress for tag, or an empty record if none exists.
func (s *Store) Load(tag string) (*Progress, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Path(tag))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress %s: %w", tag, err)
	}

	p := New()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse progress %s: %w", tag, err)
	}
	if p.Completed == nil {
		p.Completed = []CompletedItem{}
	}
	if p.Failed == nil {
		p.Failed = []FailedItem{}
	}
	p.normalize()
	return p, nil
}

// Save writes the progress for tag atomically: the record goes to a temporary
// file in the same directory which is synced and renamed over the target.
func (s *Store) Save(tag string, p *Progress) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress %s: %w", tag, err)
	}
	return WriteFileAtomic(s.Path(tag), append(raw, '\n'))
}

// Reset deletes the progress for tag. A missing file is not an error.
func (s *Store) Reset(tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	if err := os.Remove(s.Path(tag)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset progress %s: %w", tag, err)
	}
	return nil
}

// List returns the tags that have a progress file, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	var tags []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		tag := strings.TrimSuffix(name, ".json")
		if ValidateTag(tag) == nil {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// WriteFileAtomic replaces path with data via a synced temporary file and rename.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
