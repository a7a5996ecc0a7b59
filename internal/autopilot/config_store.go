package autopilot

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// ConfigKey is the fixed document key the autopilot config lives under.
const ConfigKey = "autopilot"

// ConfigStore persists configuration documents by key. Get returns
// (nil, nil) when the key has never been written.
//
// Concurrent writers are not coordinated: updates are whole-document
// read-modify-write and the last writer wins. HQ assumes a single
// operator.
type ConfigStore interface {
	Get(key string) ([]byte, error)
	Set(key string, doc []byte) error
}

// SQLiteConfigStore stores config documents in a key/value table.
type SQLiteConfigStore struct {
	db *sql.DB
}

// NewSQLiteConfigStore creates a store using an existing *sql.DB
// connection and runs migrations.
func NewSQLiteConfigStore(db *sql.DB) (*SQLiteConfigStore, error) {
	s := &SQLiteConfigStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("config store migration failed: %w", err)
	}
	return s, nil
}

// NewSQLiteConfigStoreFromPath opens a new SQLite connection at path.
// Pass ":memory:" for an ephemeral store in tests.
func NewSQLiteConfigStoreFromPath(path string) (*SQLiteConfigStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}
	return NewSQLiteConfigStore(db)
}

func (s *SQLiteConfigStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS config_documents (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Get returns the document stored under key, or (nil, nil) when absent.
func (s *SQLiteConfigStore) Get(key string) ([]byte, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config_documents WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config document: %w", err)
	}
	return []byte(value), nil
}

// Set writes the document under key, replacing any previous value.
func (s *SQLiteConfigStore) Set(key string, doc []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO config_documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to write config document: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteConfigStore) Close() error {
	return s.db.Close()
}
