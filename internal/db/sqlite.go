package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultBusyTimeout is how long a connection waits on a lock before
	// surfacing SQLITE_BUSY to the caller.
	DefaultBusyTimeout = 5 * time.Second

	// sqliteReaderConns bounds the read-only pool. WAL mode lets these
	// proceed alongside the single writer.
	sqliteReaderConns = 4
)

// OpenSQLite opens the write side of the store: one connection, so
// concurrent writes queue in the pool instead of failing with SQLITE_BUSY.
// The database file and its parent directory are created when missing.
//
// The writer DSN selects WAL journaling (readers proceed during writes),
// NORMAL synchronous, and foreign key enforcement.
func OpenSQLite(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	path := normalizeSQLitePath(dbPath)
	if err := ensureSQLiteDir(path); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	if err := ensureSQLiteFile(path); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, busyMillis(busyTimeout),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// OpenSQLiteReader opens the read side: a small read-only pool. Journal
// mode and synchronous level are database-wide and belong to the writer
// DSN, so the reader sets only connection-level options.
func OpenSQLiteReader(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=ro&_busy_timeout=%d&_cache=shared",
		normalizeSQLitePath(dbPath), busyMillis(busyTimeout),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}

	db.SetMaxOpenConns(sqliteReaderConns)
	db.SetMaxIdleConns(sqliteReaderConns)

	return db, nil
}

func busyMillis(d time.Duration) int {
	if d <= 0 {
		d = DefaultBusyTimeout
	}
	return int(d / time.Millisecond)
}

func ensureSQLiteDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func ensureSQLiteFile(dbPath string) error {
	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func normalizeSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
