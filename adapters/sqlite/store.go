// Package sqlite provides an embedded SQLite backend: an event log, a
// snapshot store and a command log sharing one database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const eventsTableSQL = `CREATE TABLE IF NOT EXISTS events (
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	seq            INTEGER NOT NULL,
	event_id       TEXT NOT NULL UNIQUE,
	event_type     TEXT NOT NULL,
	version        INTEGER NOT NULL,
	occurred_at    INTEGER NOT NULL,
	user_id        TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	data           BLOB NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id, seq)
)`

const snapshotsTableSQL = `CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	snapshot_id    TEXT NOT NULL,
	version        INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	encoding       TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	data           BLOB NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id)
)`

// CommandLogTableSQL creates the command log table.
const CommandLogTableSQL = `CREATE TABLE IF NOT EXISTS command_log (
	command_id     TEXT PRIMARY KEY,
	command_type   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	user_id        TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	payload        BLOB NOT NULL,
	event_ids      TEXT NOT NULL,
	executed_at    INTEGER NOT NULL
)`

const DropCommandLogTableSQL = `DROP TABLE IF EXISTS command_log`

// Store owns the database handle shared by the event, snapshot and command
// log stores.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 { return value.UTC().UnixMilli() }

func fromMillis(value int64) time.Time { return time.UnixMilli(value).UTC() }

// Open opens the database at path in WAL mode and creates missing tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// one writer; readers queue behind it instead of failing with SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	for _, stmt := range []string{eventsTableSQL, snapshotsTableSQL, CommandLogTableSQL} {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB exposes the handle, mostly for tests and maintenance.
func (s *Store) DB() *sql.DB { return s.sqlDB }

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, query, args...)
	return err
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func isBusyError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}
