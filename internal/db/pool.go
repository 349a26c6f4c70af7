package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sparkq/sparkq/internal/db/dialect"
)

// Pool pairs a write connection with a read pool.
//
// Under SQLite the writer is a single connection, so writes serialize
// without SQLITE_BUSY, while WAL snapshots let the read pool run SELECTs
// concurrently. Under Postgres both sides are the same *sqlx.DB; the server
// handles concurrency.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// Options configures Open.
type Options struct {
	Driver      string // "sqlite" (default) or "postgres"
	Path        string // sqlite database file
	DSN         string // postgres connection string
	BusyTimeout int    // sqlite lock wait, in milliseconds
	MaxConns    int    // postgres pool ceiling, 0 for the default
	MinConns    int    // postgres idle floor, 0 for the default
}

// Open opens the store for the configured driver and returns a Pool.
func Open(opts Options) (*Pool, error) {
	switch opts.Driver {
	case "", "sqlite", "sqlite3":
		busy := DefaultBusyTimeout
		if opts.BusyTimeout > 0 {
			busy = time.Duration(opts.BusyTimeout) * time.Millisecond
		}
		writer, err := OpenSQLite(opts.Path, busy)
		if err != nil {
			return nil, err
		}
		reader, err := OpenSQLiteReader(opts.Path, busy)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		return NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3)), nil

	case "postgres", "pgx":
		pg, err := OpenPostgres(opts.DSN, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		shared := sqlx.NewDb(pg, dialect.PGX)
		return NewPool(shared, shared), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", opts.Driver)
	}
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer returns the side used for INSERT, UPDATE, DELETE, and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the side used for SELECT queries.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// DriverName reports the underlying sqlx driver name, used for dialect
// selection in queries.
func (p *Pool) DriverName() string { return p.writer.DriverName() }

// Close closes both the writer and reader pools.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	// Avoid double-close when both pools share the same *sqlx.DB (Postgres).
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}
