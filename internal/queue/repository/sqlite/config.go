package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/ident"
	"github.com/sparkq/sparkq/internal/queue/models"
)

// GetConfigEntry retrieves a single config row by namespace and key
func (r *Repository) GetConfigEntry(ctx context.Context, namespace, key string) (*models.ConfigEntry, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT namespace, key, value, updated_at FROM config
		WHERE namespace = ? AND key = ?`), namespace, key)
	entry := &models.ConfigEntry{}
	err := row.Scan(&entry.Namespace, &entry.Key, &entry.Value, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("config entry %s/%s not found", namespace, key)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListConfigEntries returns all config rows ordered by namespace and key
func (r *Repository) ListConfigEntries(ctx context.Context) ([]*models.ConfigEntry, error) {
	rows, err := r.ro.QueryContext(ctx, `
		SELECT namespace, key, value, updated_at FROM config
		ORDER BY namespace, key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.ConfigEntry
	for rows.Next() {
		entry := &models.ConfigEntry{}
		if err := rows.Scan(&entry.Namespace, &entry.Key, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// PutConfigEntry upserts a config row. When the write touches a catalog
// namespace the caller passes the recomputed projection rows and the
// matching table is rewritten in the same transaction, so the config
// table and its projections never drift.
func (r *Repository) PutConfigEntry(ctx context.Context, entry *models.ConfigEntry, tools []*models.Tool, classes []*models.TaskClass) error {
	entry.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO config (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), entry.Namespace, entry.Key, entry.Value, entry.UpdatedAt)
	if err != nil {
		return mapError(err, "put config entry")
	}

	if err := r.rewriteCatalogs(ctx, tx, tools, classes); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteConfigEntry removes a config row, rewriting projections the same
// way PutConfigEntry does.
func (r *Repository) DeleteConfigEntry(ctx context.Context, namespace, key string, tools []*models.Tool, classes []*models.TaskClass) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM config WHERE namespace = ? AND key = ?`), namespace, key)
	if err != nil {
		return mapError(err, "delete config entry")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFoundf("config entry %s/%s not found", namespace, key)
	}

	if err := r.rewriteCatalogs(ctx, tx, tools, classes); err != nil {
		return err
	}
	return tx.Commit()
}

// rewriteCatalogs replaces projection tables wholesale. A nil slice
// means the table is untouched; an empty non-nil slice empties it.
func (r *Repository) rewriteCatalogs(ctx context.Context, tx *sql.Tx, tools []*models.Tool, classes []*models.TaskClass) error {
	now := time.Now().UTC()
	if tools != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tools`); err != nil {
			return mapError(err, "rewrite tools")
		}
		for _, tool := range tools {
			_, err := tx.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO tools (name, task_class, description, updated_at) VALUES (?, ?, ?, ?)
			`), tool.Name, tool.TaskClass, tool.Description, now)
			if err != nil {
				return mapError(err, "rewrite tools")
			}
		}
	}
	if classes != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_classes`); err != nil {
			return mapError(err, "rewrite task classes")
		}
		for _, class := range classes {
			_, err := tx.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO task_classes (name, timeout, description, updated_at) VALUES (?, ?, ?, ?)
			`), class.Name, class.Timeout, class.Description, now)
			if err != nil {
				return mapError(err, "rewrite task classes")
			}
		}
	}
	return nil
}

// ListTools returns the tool catalog ordered by name
func (r *Repository) ListTools(ctx context.Context) ([]*models.Tool, error) {
	rows, err := r.ro.QueryContext(ctx, `
		SELECT name, task_class, description, updated_at FROM tools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Tool
	for rows.Next() {
		tool := &models.Tool{}
		if err := rows.Scan(&tool.Name, &tool.TaskClass, &tool.Description, &tool.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, tool)
	}
	return result, rows.Err()
}

// ListTaskClasses returns the task class catalog ordered by name
func (r *Repository) ListTaskClasses(ctx context.Context) ([]*models.TaskClass, error) {
	rows, err := r.ro.QueryContext(ctx, `
		SELECT name, timeout, description, updated_at FROM task_classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.TaskClass
	for rows.Next() {
		class := &models.TaskClass{}
		if err := rows.Scan(&class.Name, &class.Timeout, &class.Description, &class.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, class)
	}
	return result, rows.Err()
}

// SeedCatalogs populates each catalog table on first run. A table that
// already has rows keeps them, so operator edits survive restarts.
func (r *Repository) SeedCatalogs(ctx context.Context, tools []*models.Tool, classes []*models.TaskClass, prompts []*models.Prompt) error {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tools`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		now := time.Now().UTC()
		for _, tool := range tools {
			_, err := r.db.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO tools (name, task_class, description, updated_at) VALUES (?, ?, ?, ?)
			`), tool.Name, tool.TaskClass, tool.Description, now)
			if err != nil {
				return mapError(err, "seed tools")
			}
		}
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_classes`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		now := time.Now().UTC()
		for _, class := range classes {
			_, err := r.db.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO task_classes (name, timeout, description, updated_at) VALUES (?, ?, ?, ?)
			`), class.Name, class.Timeout, class.Description, now)
			if err != nil {
				return mapError(err, "seed task classes")
			}
		}
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		now := time.Now().UTC()
		for _, prompt := range prompts {
			id := prompt.ID
			if id == "" {
				id = ident.New(ident.KindPrompt)
			}
			_, err := r.db.ExecContext(ctx, r.db.Rebind(`
				INSERT INTO prompts (id, name, description, content, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`), id, prompt.Name, prompt.Description, prompt.Content, now, now)
			if err != nil {
				return mapError(err, "seed prompts")
			}
		}
	}
	return nil
}

// ListPrompts returns the prompt catalog ordered by name
func (r *Repository) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	rows, err := r.ro.QueryContext(ctx, `
		SELECT id, name, description, content, created_at, updated_at FROM prompts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Prompt
	for rows.Next() {
		prompt := &models.Prompt{}
		err := rows.Scan(&prompt.ID, &prompt.Name, &prompt.Description, &prompt.Content, &prompt.CreatedAt, &prompt.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, prompt)
	}
	return result, rows.Err()
}

// GetPrompt retrieves a prompt by its unique name
func (r *Repository) GetPrompt(ctx context.Context, name string) (*models.Prompt, error) {
	row := r.ro.QueryRowContext(ctx, r.ro.Rebind(`
		SELECT id, name, description, content, created_at, updated_at FROM prompts WHERE name = ?`), name)
	prompt := &models.Prompt{}
	err := row.Scan(&prompt.ID, &prompt.Name, &prompt.Description, &prompt.Content, &prompt.CreatedAt, &prompt.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("prompt", name)
	}
	if err != nil {
		return nil, err
	}
	return prompt, nil
}
