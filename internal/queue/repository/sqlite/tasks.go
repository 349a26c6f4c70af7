package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/ident"
	"github.com/sparkq/sparkq/internal/db/dialect"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository"
	"github.com/sparkq/sparkq/internal/telemetry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

const taskColumns = `id, friendly_id, queue_id, tool_name, task_class, payload, status, timeout,
	attempts, result, result_summary, error, error_message, stale_warned_at,
	created_at, updated_at, started_at, finished_at, claimed_at, completed_at, failed_at`

// CreateTask inserts a new task in queued status. The friendly ID is
// derived from the queue name and the tail of the task ID once, at
// insert; renaming the queue later does not rewrite it.
func (r *Repository) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = ident.New(ident.KindTask)
	}

	var queueName string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT name FROM queues WHERE id = ?`), task.QueueID).Scan(&queueName)
	if err == sql.ErrNoRows {
		return apperr.NotFound("queue", task.QueueID)
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.FriendlyID = fmt.Sprintf("%s-%s", queueName, ident.Suffix(task.ID, 4))
	task.Status = v1.TaskStatusQueued
	task.Attempts = 0
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO tasks (id, friendly_id, queue_id, tool_name, task_class, payload, status, timeout, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), task.ID, task.FriendlyID, task.QueueID, task.ToolName, task.TaskClass, task.Payload, task.Status, task.Timeout, task.Attempts, task.CreatedAt, task.UpdatedAt)
	return mapError(err, "create task")
}

// GetTask retrieves a task by ID
func (r *Repository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks in claim order (oldest first) with the total
// count for the same filters.
func (r *Repository) ListTasks(ctx context.Context, opts repository.ListTasksOptions) ([]*models.Task, int, error) {
	ctx, span := telemetry.Tracer("sparkq-db").Start(ctx, "db.ListTasks")
	defer span.End()

	where := " WHERE 1=1"
	var args []interface{}
	if opts.QueueID != "" {
		where += " AND queue_id = ?"
		args = append(args, opts.QueueID)
	}
	if opts.Status != "" {
		where += " AND status = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := r.ro.QueryRowContext(ctx, r.ro.Rebind(`SELECT COUNT(*) FROM tasks`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks`+where+`
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// UpdateTask updates a task's descriptive fields. Status never changes
// here; the lifecycle operations own status.
func (r *Repository) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks SET tool_name = ?, task_class = ?, payload = ?, timeout = ?, updated_at = ?
		WHERE id = ?
	`), task.ToolName, task.TaskClass, task.Payload, task.Timeout, task.UpdatedAt, task.ID)
	if err != nil {
		return mapError(err, "update task")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("task", task.ID)
	}
	return nil
}

// DeleteTask deletes a task by ID
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM tasks WHERE id = ?`), id)
	if err != nil {
		return mapError(err, "delete task")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}

// ClaimQueuedInQueue atomically claims the oldest queued task in a
// queue: the task moves to running, claimed_at and started_at are set,
// and attempts increments, all in one transaction. Returns (nil, nil)
// when the queue has no queued task. Ties on created_at break by ID so
// claim order is deterministic.
func (r *Repository) ClaimQueuedInQueue(ctx context.Context, queueID string) (*models.Task, error) {
	ctx, span := telemetry.Tracer("sparkq-db").Start(ctx, "db.ClaimQueuedInQueue")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id FROM tasks
		WHERE queue_id = ? AND status = ?
		ORDER BY created_at, id
		LIMIT 1`+dialect.ClaimLock(r.db.DriverName())), queueID, v1.TaskStatusQueued).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks
		SET status = ?, attempts = attempts + 1, claimed_at = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), v1.TaskStatusRunning, now, now, now, id, v1.TaskStatusQueued)
	if err != nil {
		return nil, mapError(err, "claim task")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// The selected row is locked by this transaction (postgres) or
		// serialized behind the single writer (sqlite), so the guard
		// cannot miss.
		return nil, apperr.Internal(fmt.Sprintf("claim lost task %s mid-transaction", id), nil)
	}

	row := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}

// MarkRunningToSucceeded completes a running task. Any other status is a
// conflict naming the current status.
func (r *Repository) MarkRunningToSucceeded(ctx context.Context, id, resultSummary, resultData string) (*models.Task, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks
		SET status = ?, result_summary = ?, result = ?, completed_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), v1.TaskStatusSucceeded, resultSummary, resultData, now, now, now, id, v1.TaskStatusRunning)
	if err != nil {
		return nil, mapError(err, "complete task")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		task, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflictf("cannot complete task %s: status is %s", id, task.Status)
	}
	return r.GetTask(ctx, id)
}

// MarkToFailed fails a task from any non-terminal status: a worker or
// the watcher fails a running task, a human may fail one still queued.
// The stored error composes "TYPE: message" when a type is given.
func (r *Repository) MarkToFailed(ctx context.Context, id, errorMessage, errorType string) (*models.Task, error) {
	composed := errorMessage
	if errorType != "" {
		composed = fmt.Sprintf("%s: %s", errorType, errorMessage)
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks
		SET status = ?, error_message = ?, error = ?, failed_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`), v1.TaskStatusFailed, errorMessage, composed, now, now, now, id, v1.TaskStatusQueued, v1.TaskStatusRunning)
	if err != nil {
		return nil, mapError(err, "fail task")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		task, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflictf("cannot fail task %s: status is %s", id, task.Status)
	}
	return r.GetTask(ctx, id)
}

// CloneForRequeue creates a fresh queued task copying the work
// definition of a terminal one. The original row is preserved unchanged
// for audit. The queue must still be active; a requeue is a new enqueue
// as far as the queue state machine is concerned.
func (r *Repository) CloneForRequeue(ctx context.Context, id string) (*models.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, r.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	source, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("task", id)
	}
	if err != nil {
		return nil, err
	}
	if !source.IsTerminal() {
		return nil, apperr.Conflictf("cannot requeue task %s: status is %s", id, source.Status)
	}

	var queueName string
	var queueStatus v1.QueueStatus
	err = tx.QueryRowContext(ctx, r.db.Rebind(`SELECT name, status FROM queues WHERE id = ?`), source.QueueID).
		Scan(&queueName, &queueStatus)
	if err != nil {
		return nil, err
	}
	if queueStatus != v1.QueueStatusActive {
		return nil, apperr.Conflictf("cannot requeue into queue %s: status is %s", source.QueueID, queueStatus)
	}

	now := time.Now().UTC()
	clone := &models.Task{
		ID:        ident.New(ident.KindTask),
		QueueID:   source.QueueID,
		ToolName:  source.ToolName,
		TaskClass: source.TaskClass,
		Payload:   source.Payload,
		Status:    v1.TaskStatusQueued,
		Timeout:   source.Timeout,
		CreatedAt: now,
		UpdatedAt: now,
	}
	clone.FriendlyID = fmt.Sprintf("%s-%s", queueName, ident.Suffix(clone.ID, 4))

	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO tasks (id, friendly_id, queue_id, tool_name, task_class, payload, status, timeout, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), clone.ID, clone.FriendlyID, clone.QueueID, clone.ToolName, clone.TaskClass, clone.Payload, clone.Status, clone.Timeout, clone.Attempts, clone.CreatedAt, clone.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "requeue task")
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return clone, nil
}

// ListRunning returns every running task with a started_at timestamp,
// for the watcher's stale pass.
func (r *Repository) ListRunning(ctx context.Context) ([]*models.Task, error) {
	ctx, span := telemetry.Tracer("sparkq-db").Start(ctx, "db.ListRunning")
	defer span.End()

	rows, err := r.ro.QueryContext(ctx, r.ro.Rebind(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ? AND started_at IS NOT NULL
		ORDER BY started_at`), v1.TaskStatusRunning)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTasks(rows)
}

// MarkStaleWarned records the soft-deadline warning once. A task already
// warned, or no longer running, is left untouched.
func (r *Repository) MarkStaleWarned(ctx context.Context, id string, warnedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE tasks SET stale_warned_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND stale_warned_at IS NULL
	`), warnedAt, warnedAt, id, v1.TaskStatusRunning)
	return mapError(err, "mark task stale")
}

// DeleteTasksOlderThan purges terminal tasks whose finished_at is more
// than the given number of days old. Non-terminal tasks are never
// purged. Returns the number of rows removed.
func (r *Repository) DeleteTasksOlderThan(ctx context.Context, days int) (int, error) {
	drv := r.db.DriverName()
	query := fmt.Sprintf(`
		DELETE FROM tasks
		WHERE status IN (?, ?)
			AND finished_at IS NOT NULL
			AND finished_at < %s`, dialect.NowMinusDays(drv, "?"))
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), v1.TaskStatusSucceeded, v1.TaskStatusFailed, days)
	if err != nil {
		return 0, mapError(err, "purge tasks")
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var staleWarnedAt, startedAt, finishedAt, claimedAt, completedAt, failedAt sql.NullTime
	err := row.Scan(
		&task.ID,
		&task.FriendlyID,
		&task.QueueID,
		&task.ToolName,
		&task.TaskClass,
		&task.Payload,
		&task.Status,
		&task.Timeout,
		&task.Attempts,
		&task.Result,
		&task.ResultSummary,
		&task.Error,
		&task.ErrorMessage,
		&staleWarnedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedAt,
		&finishedAt,
		&claimedAt,
		&completedAt,
		&failedAt,
	)
	if err != nil {
		return nil, err
	}
	if staleWarnedAt.Valid {
		task.StaleWarnedAt = &staleWarnedAt.Time
	}
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = &finishedAt.Time
	}
	if claimedAt.Valid {
		task.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		task.FailedAt = &failedAt.Time
	}
	return task, nil
}

func scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}
