package sqlite

import (
	"context"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// ProjectStats retrieves project-wide counts in a single query
func (r *Repository) ProjectStats(ctx context.Context) (*v1.ProjectStats, error) {
	// Separate subqueries keep counts independent of JOIN multiplication
	query := r.ro.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM sessions) as sessions,
			(SELECT COUNT(*) FROM queues) as queues,
			(SELECT COUNT(*) FROM tasks WHERE status = ?) as tasks_queued,
			(SELECT COUNT(*) FROM tasks WHERE status = ?) as tasks_running
	`)

	var stats v1.ProjectStats
	err := r.ro.QueryRowContext(ctx, query, v1.TaskStatusQueued, v1.TaskStatusRunning).Scan(
		&stats.Sessions,
		&stats.Queues,
		&stats.TasksQueued,
		&stats.TasksRunning,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
