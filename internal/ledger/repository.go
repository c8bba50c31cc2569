package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRunCounts(ctx context.Context, id string, c Counts) error
	FinishRun(ctx context.Context, id, status string, c Counts, errorMsg string, finishedAt time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, f RunFilter) ([]*Run, error)
	ActiveRun(ctx context.Context) (*Run, error)

	AddItem(ctx context.Context, item *RunItem) error
	ListItems(ctx context.Context, runID string) ([]*RunItem, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

var runColumns = []string{
	"id", "tag", "dry_run", "status", "discovered", "planned", "completed",
	"failed", "pending", "error", "started_at", "finished_at",
}

var itemColumns = []string{
	"run_id", "seq", "slug", "title", "outcome", "asset_id", "reason",
	"analysis_degraded", "duration_ms", "created_at",
}

func (r *SQLiteRepository) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.exec(ctx, sq.Insert("runs").Columns(runColumns...).Values(
		run.ID, run.Tag, boolToInt(run.DryRun), run.Status,
		run.Discovered, run.Planned, run.Completed, run.Failed, run.Pending,
		nullString(run.Error), formatTime(run.StartedAt), nullTime(run.FinishedAt),
	))
	return err
}

func (r *SQLiteRepository) UpdateRunCounts(ctx context.Context, id string, c Counts) error {
	_, err := r.exec(ctx, sq.Update("runs").SetMap(countsMap(c)).Where(sq.Eq{"id": id}))
	return err
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id, status string, c Counts, errorMsg string, finishedAt time.Time) error {
	set := countsMap(c)
	set["status"] = status
	set["error"] = nullString(errorMsg)
	set["finished_at"] = formatTime(finishedAt)
	_, err := r.exec(ctx, sq.Update("runs").SetMap(set).Where(sq.Eq{"id": id}))
	return err
}

func countsMap(c Counts) map[string]any {
	return map[string]any{
		"discovered": c.Discovered,
		"planned":    c.Planned,
		"completed":  c.Completed,
		"failed":     c.Failed,
		"pending":    c.Pending,
	}
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	runs, err := r.queryRuns(ctx, sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}))
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, f RunFilter) ([]*Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q := sq.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id DESC").Limit(uint64(limit))
	if f.Tag != "" {
		q = q.Where(sq.Eq{"tag": f.Tag})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}
	return r.queryRuns(ctx, q)
}

func (r *SQLiteRepository) ActiveRun(ctx context.Context) (*Run, error) {
	runs, err := r.queryRuns(ctx, sq.Select(runColumns...).From("runs").
		Where(sq.Eq{"status": RunStatusRunning}).OrderBy("started_at DESC").Limit(1))
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

func (r *SQLiteRepository) queryRuns(ctx context.Context, b sq.SelectBuilder) ([]*Run, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var dryRun int
		var errMsg, finishedAt sql.NullString
		var startedAt string

		if err := rows.Scan(&run.ID, &run.Tag, &dryRun, &run.Status, &run.Discovered, &run.Planned,
			&run.Completed, &run.Failed, &run.Pending, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		run.DryRun = dryRun == 1
		run.Error = errMsg.String
		run.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) AddItem(ctx context.Context, item *RunItem) error {
	_, err := r.exec(ctx, sq.Insert("run_items").Columns(itemColumns...).Values(
		item.RunID, item.Seq, item.Slug, item.Title, item.Outcome,
		nullString(item.AssetID), nullString(item.Reason), boolToInt(item.AnalysisDegraded),
		item.DurationMS, formatTime(item.CreatedAt),
	))
	return err
}

func (r *SQLiteRepository) ListItems(ctx context.Context, runID string) ([]*RunItem, error) {
	query, args, err := sq.Select(itemColumns...).From("run_items").
		Where(sq.Eq{"run_id": runID}).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*RunItem
	for rows.Next() {
		var it RunItem
		var assetID, reason sql.NullString
		var degraded int
		var createdAt string

		if err := rows.Scan(&it.RunID, &it.Seq, &it.Slug, &it.Title, &it.Outcome,
			&assetID, &reason, &degraded, &it.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		it.AssetID = assetID.String
		it.Reason = reason.String
		it.AnalysisDegraded = degraded == 1
		it.CreatedAt = parseTime(createdAt)
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	query, args, err := sq.Select("value").From("config").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}
	var value string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.exec(ctx, sq.Insert("config").Columns("key", "value").Values(key, value).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')"))
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
