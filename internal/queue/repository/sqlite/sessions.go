package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/ident"
	"github.com/sparkq/sparkq/internal/db/dialect"
	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

const sessionColumns = `id, name, description, status, started_at, ended_at, created_at, updated_at`

// CreateSession creates a new session in active status
func (r *Repository) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = ident.New(ident.KindSession)
	}
	now := time.Now().UTC()
	session.Status = v1.SessionStatusActive
	session.StartedAt = now
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sessions (id, name, description, status, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), session.ID, session.Name, session.Description, session.Status, session.StartedAt, session.CreatedAt, session.UpdatedAt)
	return mapError(err, "create session")
}

// GetSession retrieves a session by ID
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return r.getSessionWhere(ctx, "id = ?", id)
}

// GetSessionByName retrieves a session by its unique name
func (r *Repository) GetSessionByName(ctx context.Context, name string) (*models.Session, error) {
	return r.getSessionWhere(ctx, "name = ?", name)
}

func (r *Repository) getSessionWhere(ctx context.Context, where, arg string) (*models.Session, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT `+sessionColumns+` FROM sessions WHERE `+where), arg)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("session", arg)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns all sessions, newest first. A non-empty query
// narrows by name substring.
func (r *Repository) ListSessions(ctx context.Context, query string) ([]*models.Session, error) {
	sqlQuery := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []interface{}{}
	if query != "" {
		sqlQuery += ` WHERE ` + dialect.NameContains(r.ro.DriverName(), "name")
		args = append(args, dialect.ContainsArg(query))
	}
	sqlQuery += ` ORDER BY created_at DESC`

	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(sqlQuery), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	return result, rows.Err()
}

// UpdateSession updates a session's name and description
func (r *Repository) UpdateSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET name = ?, description = ?, updated_at = ? WHERE id = ?
	`), session.Name, session.Description, session.UpdatedAt, session.ID)
	if err != nil {
		return mapError(err, "update session")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("session", session.ID)
	}
	return nil
}

// EndSession marks an active session ended. Ending is advisory: the
// session's queues and tasks are untouched.
func (r *Repository) EndSession(ctx context.Context, id string) (*models.Session, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET status = ?, ended_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), v1.SessionStatusEnded, now, now, id, v1.SessionStatusActive)
	if err != nil {
		return nil, mapError(err, "end session")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		session, err := r.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflictf("cannot end session %s: status is %s", id, session.Status)
	}
	return r.GetSession(ctx, id)
}

// DeleteSession deletes a session. Queues and tasks cascade.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	if err != nil {
		return mapError(err, "delete session")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("session", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var endedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Description,
		&session.Status,
		&session.StartedAt,
		&endedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return session, nil
}
