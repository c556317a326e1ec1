package undo

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteHistoryStore keeps the history record as a single row in a
// SQLite database. Useful when a front end already maintains a
// database alongside the task store.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// NewSQLiteHistoryStore opens (or creates) the database at dbPath.
// ":memory:" is accepted for tests.
func NewSQLiteHistoryStore(dbPath string) (*SQLiteHistoryStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS undo_history (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &SQLiteHistoryStore{db: db}, nil
}

func (s *SQLiteHistoryStore) Load() (*History, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM undo_history WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read undo history: %w", err)
	}
	var h History
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return nil, fmt.Errorf("parse undo history: %w", err)
	}
	return &h, nil
}

func (s *SQLiteHistoryStore) Save(h *History) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode undo history: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO undo_history (id, payload, saved_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload), h.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save undo history: %w", err)
	}
	return nil
}

func (s *SQLiteHistoryStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM undo_history WHERE id = 1`); err != nil {
		return fmt.Errorf("clear undo history: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteHistoryStore) Close() error {
	return s.db.Close()
}
