package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultPGMaxConns = 25
	defaultPGMinConns = 5
)

// OpenPostgres opens a PostgreSQL pool through the pgx stdlib driver.
// Postgres deployments share one pool for reads and writes; row locking
// replaces the single-writer discipline SQLite needs. Non-positive conn
// bounds fall back to the package defaults.
func OpenPostgres(dsn string, maxConns, minConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultPGMaxConns
	}
	if minConns <= 0 {
		minConns = defaultPGMinConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}
