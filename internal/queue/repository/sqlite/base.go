// Package sqlite provides the SQL-backed store implementation. The default
// deployment runs on SQLite; the same queries serve PostgreSQL through the
// dialect helpers and sqlx rebinding.
package sqlite

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/sparkq/sparkq/internal/common/apperr"
)

// Repository provides SQL-backed storage for sessions, queues, tasks,
// config entries, and the catalog projections.
type Repository struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	ownsDB bool
}

// NewWithDB creates a store on existing database connections (shared ownership).
func NewWithDB(writer, reader *sqlx.DB) (*Repository, error) {
	return newRepository(writer, reader, false)
}

func newRepository(writer, reader *sqlx.DB, ownsDB bool) (*Repository, error) {
	repo := &Repository{db: writer, ro: reader, ownsDB: ownsDB}
	if err := repo.initSchema(); err != nil {
		if ownsDB {
			if closeErr := writer.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close releases the connections when the store owns them; pool-backed
// stores leave lifecycle to the pool.
func (r *Repository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

// DriverName returns the writer's driver name.
func (r *Repository) DriverName() string {
	return r.db.DriverName()
}

// initSchema brings the database to the current shape. Every step is
// idempotent, so it runs unconditionally on startup.
func (r *Repository) initSchema() error {
	if err := r.initCoreSchema(); err != nil {
		return err
	}
	if err := r.initConfigSchema(); err != nil {
		return err
	}
	if err := r.runMigrations(); err != nil {
		return err
	}
	return r.initIndexes()
}

func (r *Repository) initCoreSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS project (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		repo_path TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queues (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL UNIQUE,
		instructions TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		ended_at TIMESTAMP,
		archived_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		friendly_id TEXT NOT NULL DEFAULT '',
		queue_id TEXT NOT NULL,
		tool_name TEXT NOT NULL DEFAULT '',
		task_class TEXT NOT NULL DEFAULT '',
		payload TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued',
		timeout INTEGER NOT NULL DEFAULT 300,
		attempts INTEGER NOT NULL DEFAULT 0,
		result TEXT DEFAULT '',
		result_summary TEXT DEFAULT '',
		error TEXT DEFAULT '',
		error_message TEXT DEFAULT '',
		stale_warned_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		claimed_at TIMESTAMP,
		completed_at TIMESTAMP,
		failed_at TIMESTAMP,
		FOREIGN KEY (queue_id) REFERENCES queues(id) ON DELETE CASCADE
	);
	`)
	return err
}

func (r *Repository) initConfigSchema() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS config (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (namespace, key)
	);

	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		task_class TEXT NOT NULL,
		description TEXT DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_classes (
		name TEXT PRIMARY KEY,
		timeout INTEGER NOT NULL,
		description TEXT DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`)
	return err
}

// runMigrations adds columns that postdate the first schema version.
func (r *Repository) runMigrations() error {
	// stale_warned_at and archived_at postdate the first schema version
	// (ignore error if the column already exists)
	_, _ = r.db.Exec(`ALTER TABLE tasks ADD COLUMN stale_warned_at TIMESTAMP`)
	_, _ = r.db.Exec(`ALTER TABLE queues ADD COLUMN archived_at TIMESTAMP`)
	return nil
}

func (r *Repository) initIndexes() error {
	_, err := r.db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_queues_session_id ON queues(session_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_queue_id ON tasks(queue_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks(queue_id, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_finished_at ON tasks(finished_at);
	`)
	return err
}

// mapError converts driver-level failures into the application error
// taxonomy: uniqueness collisions are validation errors, missing parent
// rows are not found, lock timeouts surface as internal with a retry
// hint. Anything already classified passes through unchanged.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return apperr.Validationf("%s: %v", op, err)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return apperr.NotFoundf("%s: referenced row does not exist", op)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return apperr.Internal(fmt.Sprintf("%s: database busy, retry later", op), err)
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperr.Validationf("%s: %s", op, pgErr.Message)
		case "23503": // foreign_key_violation
			return apperr.NotFoundf("%s: referenced row does not exist", op)
		case "55P03": // lock_not_available
			return apperr.Internal(fmt.Sprintf("%s: database busy, retry later", op), err)
		}
	}
	return err
}
