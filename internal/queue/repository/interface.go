package repository

import (
	"context"
	"time"

	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// ListTasksOptions narrows task listing. Zero values mean no filter.
type ListTasksOptions struct {
	QueueID string
	Status  v1.TaskStatus
	Limit   int
	Offset  int
}

// Store defines the interface for queue storage operations
type Store interface {
	// Project operations
	EnsureProject(ctx context.Context, name, repoPath string) (*models.Project, error)
	GetProject(ctx context.Context) (*models.Project, error)

	// Session operations. The list query filter matches name substrings.
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetSessionByName(ctx context.Context, name string) (*models.Session, error)
	ListSessions(ctx context.Context, query string) ([]*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	EndSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Queue operations
	CreateQueue(ctx context.Context, queue *models.Queue) error
	GetQueue(ctx context.Context, id string) (*models.Queue, error)
	GetQueueByName(ctx context.Context, name string) (*models.Queue, error)
	ListQueues(ctx context.Context, sessionID, query string) ([]*models.Queue, error)
	UpdateQueue(ctx context.Context, queue *models.Queue) error
	SetQueueStatus(ctx context.Context, id string, from []v1.QueueStatus, to v1.QueueStatus) (*models.Queue, error)
	DeleteQueue(ctx context.Context, id string) error
	QueueStats(ctx context.Context, queueID string) (*v1.QueueStats, error)

	// Task operations
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, opts ListTasksOptions) ([]*models.Task, int, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error

	// Lifecycle operations. Each runs in its own transaction and guards
	// the required source status; a guard miss is a conflict.
	ClaimQueuedInQueue(ctx context.Context, queueID string) (*models.Task, error)
	MarkRunningToSucceeded(ctx context.Context, id, resultSummary, resultData string) (*models.Task, error)
	MarkToFailed(ctx context.Context, id, errorMessage, errorType string) (*models.Task, error)
	CloneForRequeue(ctx context.Context, id string) (*models.Task, error)

	// Watcher operations
	ListRunning(ctx context.Context) ([]*models.Task, error)
	MarkStaleWarned(ctx context.Context, id string, warnedAt time.Time) error
	DeleteTasksOlderThan(ctx context.Context, days int) (int, error)

	// Config entries. Non-nil tools/classes slices cause the matching
	// projection table to be rewritten in the same transaction.
	GetConfigEntry(ctx context.Context, namespace, key string) (*models.ConfigEntry, error)
	ListConfigEntries(ctx context.Context) ([]*models.ConfigEntry, error)
	PutConfigEntry(ctx context.Context, entry *models.ConfigEntry, tools []*models.Tool, classes []*models.TaskClass) error
	DeleteConfigEntry(ctx context.Context, namespace, key string, tools []*models.Tool, classes []*models.TaskClass) error
	ListTools(ctx context.Context) ([]*models.Tool, error)
	ListTaskClasses(ctx context.Context) ([]*models.TaskClass, error)

	// SeedCatalogs populates the projection tables one time each: a table
	// that already has rows is left untouched.
	SeedCatalogs(ctx context.Context, tools []*models.Tool, classes []*models.TaskClass, prompts []*models.Prompt) error

	// Prompt operations
	ListPrompts(ctx context.Context) ([]*models.Prompt, error)
	GetPrompt(ctx context.Context, name string) (*models.Prompt, error)

	// Stats
	ProjectStats(ctx context.Context) (*v1.ProjectStats, error)

	// Close closes the store (for database connections)
	Close() error
}
