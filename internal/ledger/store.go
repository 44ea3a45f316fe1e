// Package ledger keeps a local SQLite history of generation runs.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_runs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL UNIQUE,
    job_id        TEXT NOT NULL DEFAULT '',
    horde         TEXT NOT NULL DEFAULT '',
    prompt        TEXT NOT NULL DEFAULT '',
    models        TEXT NOT NULL DEFAULT '',
    requested     INTEGER NOT NULL DEFAULT 0,
    dry_run       INTEGER NOT NULL DEFAULT 0,
    state         TEXT NOT NULL,
    generations   INTEGER NOT NULL DEFAULT 0,
    kudos         REAL NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    started_at    TEXT NOT NULL,
    completed_at  TEXT NOT NULL,
    duration_ms   INTEGER NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at);
`

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultPath returns ~/.dream-cli/ledger.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".dream-cli", "ledger.db")
}

// Store provides SQLite-backed storage for run records.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the ledger at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores a record. Duplicate run_id inserts are silently ignored.
func (s *Store) Insert(r Record) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO job_runs (
			run_id, job_id, horde, prompt, models, requested, dry_run,
			state, generations, kudos, error_message,
			started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.JobID, r.Horde, r.Prompt, r.Models, r.Requested, r.DryRun,
		r.State, r.Generations, r.Kudos, r.ErrorMessage,
		r.StartedAt.UTC().Format(timeLayout), r.CompletedAt.UTC().Format(timeLayout), r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, job_id, horde, prompt, models, requested, dry_run,
		       state, generations, kudos, error_message,
		       started_at, completed_at, duration_ms
		FROM job_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var startedAt, completedAt string
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.JobID, &r.Horde, &r.Prompt, &r.Models, &r.Requested, &r.DryRun,
			&r.State, &r.Generations, &r.Kudos, &r.ErrorMessage,
			&startedAt, &completedAt, &r.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if t, err := time.Parse(timeLayout, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(timeLayout, completedAt); err == nil {
			r.CompletedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalKudos sums the kudos of every recorded run.
func (s *Store) TotalKudos() (float64, error) {
	var total float64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(kudos), 0) FROM job_runs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum kudos: %w", err)
	}
	return total, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
