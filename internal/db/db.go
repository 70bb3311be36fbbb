// Package db is the SQLite store of resources, weekly schedules and reservations.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a reservation overlaps an occupying one.
	ErrConflict = errors.New("reservation conflict")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// timeLayout keeps stored instants lexically ordered.
const timeLayout = "2006-01-02T15:04:05Z"

// DB wraps sql.DB for the booking server.
type DB struct {
	*sql.DB
	path string
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS resources (
            id INTEGER PRIMARY KEY,
            name TEXT UNIQUE NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            duration_minutes INTEGER NOT NULL DEFAULT 60,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS day_schedules (
            resource_id INTEGER NOT NULL,
            weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
            enabled BOOLEAN NOT NULL DEFAULT 1,
            updated_at TEXT NOT NULL,
            PRIMARY KEY (resource_id, weekday),
            FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE
        )`,

		`CREATE TABLE IF NOT EXISTS schedule_turnos (
            resource_id INTEGER NOT NULL,
            weekday INTEGER NOT NULL,
            position INTEGER NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            PRIMARY KEY (resource_id, weekday, position),
            FOREIGN KEY (resource_id, weekday) REFERENCES day_schedules(resource_id, weekday) ON DELETE CASCADE
        )`,

		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            resource_id INTEGER NOT NULL,
            start_at TEXT NOT NULL,
            end_at TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            customer_name TEXT NOT NULL,
            customer_phone TEXT NOT NULL,
            customer_email TEXT NOT NULL DEFAULT '',
            note TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            FOREIGN KEY (resource_id) REFERENCES resources(id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_resources_active ON resources(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_times ON reservations(resource_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
