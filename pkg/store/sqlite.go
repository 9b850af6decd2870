package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS emotion_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		emotion TEXT NOT NULL,
		confidence REAL NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'detected',
		created_at INTEGER NOT NULL -- unix nanoseconds
	);
	CREATE INDEX IF NOT EXISTS idx_emotion_logs_user_time
		ON emotion_logs (user_id, created_at DESC);
`

// schemaVersion 1 stores created_at as integer nanoseconds; version 0
// databases held REAL seconds.
const schemaVersion = 1

// SQLite stores entries in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and
	// serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set schema version: %w", err)
	}
	return &SQLite{db: db}, nil
}

// migrate rewrites a version 0 table, whose created_at column had REAL
// affinity, into the integer nanosecond layout.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	var n int
	if err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'emotion_logs'",
	).Scan(&n); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if n == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"ALTER TABLE emotion_logs RENAME TO emotion_logs_v0",
		"DROP INDEX IF EXISTS idx_emotion_logs_user_time",
		schema,
		`INSERT INTO emotion_logs (id, user_id, emotion, confidence, notes, source, created_at)
		 SELECT id, user_id, emotion, confidence, notes, source,
		        CAST(round(created_at * 1000000) AS INTEGER) * 1000
		 FROM emotion_logs_v0`,
		"DROP TABLE emotion_logs_v0",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save inserts e.
func (s *SQLite) Save(ctx context.Context, e Entry) error {
	if err := e.prepare(); err != nil {
		return wrap("save", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emotion_logs (id, user_id, emotion, confidence, notes, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Emotion, e.Confidence, e.Notes, e.Source, e.Timestamp.UnixNano())
	if err != nil {
		return wrap("save", fmt.Errorf("insert entry: %w", err))
	}
	return nil
}

// List returns up to limit entries for userID, newest first.
func (s *SQLite) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, emotion, confidence, notes, source, created_at
		FROM emotion_logs
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, wrap("list", fmt.Errorf("query entries: %w", err))
	}
	return scanEntries(rows)
}

// Since returns every entry for userID at or after since, oldest first.
func (s *SQLite) Since(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, emotion, confidence, notes, source, created_at
		FROM emotion_logs
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`, userID, since.UnixNano())
	if err != nil {
		return nil, wrap("since", fmt.Errorf("query entries: %w", err))
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Emotion, &e.Confidence,
			&e.Notes, &e.Source, &createdAt); err != nil {
			return nil, wrap("scan", fmt.Errorf("scan entry: %w", err))
		}
		e.Timestamp = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("scan", err)
	}
	return entries, nil
}

// Verify SQLite implements History at compile time.
var _ History = (*SQLite)(nil)
