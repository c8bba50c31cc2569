package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrnkim/adland-tv/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, *SQLiteRepository) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewRepository(database.Conn())
}

func TestRepository_RunLifecycle(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

	run := &Run{ID: "01RUN", Tag: "super-bowl-2026", Status: RunStatusRunning, StartedAt: started}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	active, err := repo.ActiveRun(ctx)
	if err != nil || active == nil || active.ID != "01RUN" {
		t.Fatalf("ActiveRun() = %+v, %v", active, err)
	}

	if err := repo.UpdateRunCounts(ctx, "01RUN", Counts{Discovered: 5, Planned: 3, Pending: 5}); err != nil {
		t.Fatalf("UpdateRunCounts() error = %v", err)
	}
	finished := started.Add(time.Minute)
	if err := repo.FinishRun(ctx, "01RUN", RunStatusCompleted, Counts{Discovered: 5, Planned: 3, Completed: 2, Failed: 1, Pending: 2}, "", finished); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err := repo.GetRun(ctx, "01RUN")
	if err != nil || got == nil {
		t.Fatalf("GetRun() = %v, %v", got, err)
	}
	if got.Status != RunStatusCompleted || got.Completed != 2 || got.Failed != 1 || got.Discovered != 5 {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) || !got.StartedAt.Equal(started) {
		t.Errorf("timestamps = %v, %v", got.StartedAt, got.FinishedAt)
	}

	if active, _ := repo.ActiveRun(ctx); active != nil {
		t.Errorf("ActiveRun() after finish = %+v", active)
	}
	if missing, err := repo.GetRun(ctx, "nope"); missing != nil || err != nil {
		t.Errorf("GetRun(missing) = %v, %v", missing, err)
	}
}

func TestRepository_ListRuns(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	for i, tag := range []string{"a", "b", "a"} {
		run := &Run{ID: string(rune('1' + i)), Tag: tag, Status: RunStatusCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if i == 2 {
			run.DryRun = true
			run.Status = RunStatusDryRun
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "3" || !all[0].DryRun {
		t.Errorf("ListRuns() newest first, got %+v", all[0])
	}

	tagged, err := repo.ListRuns(ctx, RunFilter{Tag: "a", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(tagged) != 1 || tagged[0].ID != "3" {
		t.Errorf("ListRuns(tag=a, limit=1) = %+v", tagged)
	}

	byStatus, err := repo.ListRuns(ctx, RunFilter{Status: RunStatusCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 2 {
		t.Errorf("ListRuns(status=completed) = %d runs", len(byStatus))
	}
}

func TestRepository_Items(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.CreateRun(ctx, &Run{ID: "r", Tag: "t", Status: RunStatusRunning, StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	items := []*RunItem{
		{RunID: "r", Seq: 2, Slug: "b", Title: "B", Outcome: OutcomeFailed, Reason: "download failed", CreatedAt: now},
		{RunID: "r", Seq: 1, Slug: "a", Title: "A", Outcome: OutcomeCompleted, AssetID: "vid-1", AnalysisDegraded: true, DurationMS: 1500, CreatedAt: now},
	}
	for _, it := range items {
		if err := repo.AddItem(ctx, it); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
	}

	got, err := repo.ListItems(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Slug != "a" || got[1].Reason != "download failed" {
		t.Fatalf("ListItems() = %+v", got)
	}
	if !got[0].AnalysisDegraded || got[0].AssetID != "vid-1" || got[0].DurationMS != 1500 {
		t.Errorf("item = %+v", got[0])
	}

	if err := repo.AddItem(ctx, &RunItem{RunID: "missing", Seq: 1, Slug: "x", Title: "X", Outcome: OutcomeFailed, CreatedAt: now}); err == nil {
		t.Error("AddItem() for an unknown run should violate the foreign key")
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, "api_token")
	if err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "api_token", "one"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetConfig(ctx, "api_token", "two"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.GetConfig(ctx, "api_token"); v != "two" {
		t.Errorf("GetConfig() = %q, want two", v)
	}
}
