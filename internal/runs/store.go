package runs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides persistent storage for run records using SQLite.
// Migrations run automatically on initialization.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the run history database under dataPath.
func NewStore(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "hq.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewStoreInMemory opens an in-memory store, used in tests.
func NewStoreInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate creates necessary tables.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			run_type TEXT NOT NULL,
			platform_key TEXT DEFAULT '',
			status TEXT NOT NULL,
			executive_summary TEXT DEFAULT '',
			model_used TEXT DEFAULT '',
			triggered_by TEXT DEFAULT '',
			error TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_type_created ON runs(run_type, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts a new run record.
func (s *Store) SaveRun(r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, run_type, platform_key, status, executive_summary, model_used, triggered_by, error, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunType, r.PlatformKey, string(r.Status), r.ExecutiveSummary,
		r.ModelUsed, r.TriggeredBy, r.Error, r.CreatedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// UpdateStatus transitions a run record to the given status.
func (s *Store) UpdateStatus(id string, status Status) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// CompleteRun marks a run completed with its summary and model.
func (s *Store) CompleteRun(id, summary, model string) error {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, executive_summary = ?, model_used = ?, completed_at = ? WHERE id = ?`,
		string(StatusCompleted), summary, model, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// FailRun marks a run failed with the given error message.
func (s *Store) FailRun(id, errMsg string) error {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(StatusFailed), errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun fetches a single run record by ID.
func (s *Store) GetRun(id string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, run_type, platform_key, status, executive_summary, model_used, triggered_by, error, created_at, completed_at
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRecent returns the most recent runs, newest first.
func (s *Store) ListRecent(limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, run_type, platform_key, status, executive_summary, model_used, triggered_by, error, created_at, completed_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRuns(rows)
}

// LastByType returns the most recent run of the given type, or nil when
// no run of that type exists.
func (s *Store) LastByType(runType string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, run_type, platform_key, status, executive_summary, model_used, triggered_by, error, created_at, completed_at
		 FROM runs WHERE run_type = ? ORDER BY created_at DESC LIMIT 1`, runType)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// CountSince returns run counts grouped by status since the given time.
func (s *Store) CountSince(since time.Time) (map[Status]int, error) {
	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM runs WHERE created_at >= ? GROUP BY status`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Record, error) {
	var r Record
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.RunType, &r.PlatformKey, &status, &r.ExecutiveSummary,
		&r.ModelUsed, &r.TriggeredBy, &r.Error, &r.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
