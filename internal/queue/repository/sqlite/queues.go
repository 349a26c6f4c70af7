package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/ident"
	"github.com/sparkq/sparkq/internal/db/dialect"
	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

const queueColumns = `id, session_id, name, instructions, status, ended_at, archived_at, created_at, updated_at`

// CreateQueue creates a new queue in active status
func (r *Repository) CreateQueue(ctx context.Context, queue *models.Queue) error {
	if queue.ID == "" {
		queue.ID = ident.New(ident.KindQueue)
	}
	now := time.Now().UTC()
	queue.Status = v1.QueueStatusActive
	queue.CreatedAt = now
	queue.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO queues (id, session_id, name, instructions, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), queue.ID, queue.SessionID, queue.Name, queue.Instructions, queue.Status, queue.CreatedAt, queue.UpdatedAt)
	return mapError(err, "create queue")
}

// GetQueue retrieves a queue by ID
func (r *Repository) GetQueue(ctx context.Context, id string) (*models.Queue, error) {
	return r.getQueueWhere(ctx, "id = ?", id)
}

// GetQueueByName retrieves a queue by its unique name
func (r *Repository) GetQueueByName(ctx context.Context, name string) (*models.Queue, error) {
	return r.getQueueWhere(ctx, "name = ?", name)
}

func (r *Repository) getQueueWhere(ctx context.Context, where, arg string) (*models.Queue, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT `+queueColumns+` FROM queues WHERE `+where), arg)
	queue, err := scanQueue(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("queue", arg)
	}
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// ListQueues returns queues, newest first. A non-empty sessionID narrows
// to one session; a non-empty query narrows by name substring.
func (r *Repository) ListQueues(ctx context.Context, sessionID, query string) ([]*models.Queue, error) {
	sqlQuery := `SELECT ` + queueColumns + ` FROM queues`
	var conds []string
	var args []interface{}
	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	if query != "" {
		conds = append(conds, dialect.NameContains(r.ro.DriverName(), "name"))
		args = append(args, dialect.ContainsArg(query))
	}
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}
	sqlQuery += " ORDER BY created_at DESC"

	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(sqlQuery), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Queue
	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

// UpdateQueue updates a queue's name and instructions
func (r *Repository) UpdateQueue(ctx context.Context, queue *models.Queue) error {
	queue.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE queues SET name = ?, instructions = ?, updated_at = ? WHERE id = ?
	`), queue.Name, queue.Instructions, queue.UpdatedAt, queue.ID)
	if err != nil {
		return mapError(err, "update queue")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("queue", queue.ID)
	}
	return nil
}

// SetQueueStatus transitions a queue from one of the given statuses to
// the target status. Any other starting status is a conflict naming both
// states. Moving into archived stamps archived_at; moving into ended
// stamps ended_at; unarchiving clears archived_at.
func (r *Repository) SetQueueStatus(ctx context.Context, id string, from []v1.QueueStatus, to v1.QueueStatus) (*models.Queue, error) {
	now := time.Now().UTC()

	set := "status = ?, updated_at = ?"
	args := []interface{}{to, now}
	switch to {
	case v1.QueueStatusEnded:
		set += ", ended_at = ?"
		args = append(args, now)
	case v1.QueueStatusArchived:
		set += ", archived_at = ?"
		args = append(args, now)
	case v1.QueueStatusActive:
		set += ", archived_at = NULL"
	}

	placeholders := make([]string, len(from))
	for i, status := range from {
		placeholders[i] = "?"
		args = append(args, status)
	}
	args = append(args, id)

	query := `UPDATE queues SET ` + set + ` WHERE status IN (` + strings.Join(placeholders, ", ") + `) AND id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, mapError(err, "transition queue")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		queue, err := r.GetQueue(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflictf("cannot transition queue %s from %s to %s", id, queue.Status, to)
	}
	return r.GetQueue(ctx, id)
}

// DeleteQueue deletes a queue. Its tasks cascade.
func (r *Repository) DeleteQueue(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM queues WHERE id = ?`), id)
	if err != nil {
		return mapError(err, "delete queue")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("queue", id)
	}
	return nil
}

// QueueStats counts a queue's tasks by status in one grouped query. The
// counts reflect the store at the instant of the query; nothing caches
// them.
func (r *Repository) QueueStats(ctx context.Context, queueID string) (*v1.QueueStats, error) {
	stats := &v1.QueueStats{}
	err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE queue_id = ?
	`), v1.TaskStatusSucceeded, v1.TaskStatusFailed, v1.TaskStatusRunning, v1.TaskStatusQueued, queueID).
		Scan(&stats.Total, &stats.Done, &stats.Running, &stats.Queued)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func scanQueue(row rowScanner) (*models.Queue, error) {
	queue := &models.Queue{}
	var endedAt, archivedAt sql.NullTime
	err := row.Scan(
		&queue.ID,
		&queue.SessionID,
		&queue.Name,
		&queue.Instructions,
		&queue.Status,
		&endedAt,
		&archivedAt,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		queue.EndedAt = &endedAt.Time
	}
	if archivedAt.Valid {
		queue.ArchivedAt = &archivedAt.Time
	}
	return queue, nil
}
