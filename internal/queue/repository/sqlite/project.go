package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/ident"
	"github.com/sparkq/sparkq/internal/queue/models"
)

// EnsureProject returns the singleton project row, creating it on first
// call. An existing row is never overwritten.
func (r *Repository) EnsureProject(ctx context.Context, name, repoPath string) (*models.Project, error) {
	project, err := r.GetProject(ctx)
	if err == nil {
		return project, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	project = &models.Project{
		ID:        ident.New(ident.KindProject),
		Name:      name,
		RepoPath:  repoPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO project (id, name, repo_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), project.ID, project.Name, project.RepoPath, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "create project")
	}
	return project, nil
}

// GetProject retrieves the singleton project row
func (r *Repository) GetProject(ctx context.Context) (*models.Project, error) {
	project := &models.Project{}
	err := r.ro.QueryRowContext(ctx, `
		SELECT id, name, repo_path, created_at, updated_at
		FROM project ORDER BY created_at LIMIT 1
	`).Scan(&project.ID, &project.Name, &project.RepoPath, &project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("project not initialized, run setup first")
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}
