// Package dialect provides SQL fragment helpers for SQLite/PostgreSQL portability.
package dialect

const (
	SQLite3 = "sqlite3"
	PGX     = "pgx"
)

// IsPostgres returns true if the driver is PostgreSQL (pgx).
func IsPostgres(driver string) bool {
	return driver == PGX
}

// ClaimLock returns the row-locking suffix for the claim SELECT.
//
//	SQLite:   "" (the single writer connection already serializes claims)
//	Postgres: FOR UPDATE SKIP LOCKED
func ClaimLock(driver string) string {
	if IsPostgres(driver) {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}
