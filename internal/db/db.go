// Package db opens the SQLite database holding the run ledger and applies
// embedded migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the ledger database: run history, per-item outcomes and the
// operator API settings such as the bearer token.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens or creates the ledger at dbPath and brings its schema up to date.
//
// The handle is limited to one connection since the pipeline and the
// operator API record into the same file. Runs still marked running were
// left behind by a process that exited mid-run; New closes them out as
// interrupted so the run history never shows a run that nothing is driving.
// logger may be nil.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := configure(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(migrationsFS, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	n, err := db.markInterruptedRuns()
	switch {
	case logger == nil:
	case err != nil:
		logger.Warn("failed to mark interrupted runs", "error", err)
	case n > 0:
		logger.Info("marked interrupted runs", "count", n)
	}

	return db, nil
}

// configure checks the file is usable and sets the pragmas the ledger
// relies on: WAL so readers of run history never block a recording run,
// and enforced foreign keys between runs and their items.
func configure(conn *sql.DB) error {
	if err := conn.Ping(); err != nil {
		return fmt.Errorf("failed to ping ledger: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies the .sql files under dir in name order, skipping those
// already recorded in _migrations. Each file and its record commit in one
// transaction, so a failed migration leaves the ledger at the previous
// version and is retried on the next start. The first migration creates
// _migrations itself.
func (d *DB) migrate(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := d.appliedMigrations()
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" || applied[name] {
			continue
		}
		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if err := d.applyMigration(name, string(content)); err != nil {
			return err
		}
		if d.logger != nil {
			d.logger.Info("applied migration", "name", name)
		}
	}
	return nil
}

func (d *DB) applyMigration(name, stmts string) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmts); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// appliedMigrations returns the recorded migration names. A fresh ledger has
// no _migrations table yet and yields an empty set.
func (d *DB) appliedMigrations() (map[string]bool, error) {
	applied := map[string]bool{}

	var table string
	err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&table)
	if err == sql.ErrNoRows {
		return applied, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ledger schema: %w", err)
	}

	rows, err := d.conn.Query("SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// markInterruptedRuns closes out runs left running by a process that exited
// mid-run and reports how many it closed.
func (d *DB) markInterruptedRuns() (int64, error) {
	res, err := d.conn.ExecContext(context.Background(),
		`UPDATE runs SET status = 'interrupted', error = 'process exited before the run finished',
		 finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE status = 'running'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
