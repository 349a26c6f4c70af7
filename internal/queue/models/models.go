package models

import (
	"time"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// Project is the singleton identity row for the local workspace
type Project struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	RepoPath  string    `json:"repo_path" db:"repo_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Session groups queues for one stretch of work
type Session struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	Status      v1.SessionStatus `json:"status" db:"status"`
	StartedAt   time.Time        `json:"started_at" db:"started_at"`
	EndedAt     *time.Time       `json:"ended_at" db:"ended_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Queue is a FIFO container of tasks within a session
type Queue struct {
	ID           string         `json:"id" db:"id"`
	SessionID    string         `json:"session_id" db:"session_id"`
	Name         string         `json:"name" db:"name"`
	Instructions string         `json:"instructions" db:"instructions"`
	Status       v1.QueueStatus `json:"status" db:"status"`
	EndedAt      *time.Time     `json:"ended_at" db:"ended_at"`
	ArchivedAt   *time.Time     `json:"archived_at" db:"archived_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Task is the unit of work. Payload is opaque to the core; by convention
// it holds a JSON document but nothing here inspects it.
type Task struct {
	ID            string        `json:"id" db:"id"`
	FriendlyID    string        `json:"friendly_id" db:"friendly_id"`
	QueueID       string        `json:"queue_id" db:"queue_id"`
	ToolName      string        `json:"tool_name" db:"tool_name"`
	TaskClass     string        `json:"task_class" db:"task_class"`
	Payload       string        `json:"payload" db:"payload"`
	Status        v1.TaskStatus `json:"status" db:"status"`
	Timeout       int           `json:"timeout" db:"timeout"`
	Attempts      int           `json:"attempts" db:"attempts"`
	Result        string        `json:"result" db:"result"`
	ResultSummary string        `json:"result_summary" db:"result_summary"`
	Error         string        `json:"error" db:"error"`
	ErrorMessage  string        `json:"error_message" db:"error_message"`
	StaleWarnedAt *time.Time    `json:"stale_warned_at" db:"stale_warned_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
	StartedAt     *time.Time    `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at" db:"finished_at"`
	ClaimedAt     *time.Time    `json:"claimed_at" db:"claimed_at"`
	CompletedAt   *time.Time    `json:"completed_at" db:"completed_at"`
	FailedAt      *time.Time    `json:"failed_at" db:"failed_at"`
}

// IsTerminal reports whether the task is in a final status.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// ConfigEntry is one row of the database config layer. Value holds JSON.
type ConfigEntry struct {
	Namespace string    `json:"namespace" db:"namespace"`
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Tool is a row of the tools projection table
type Tool struct {
	Name        string    `json:"name" db:"name"`
	TaskClass   string    `json:"task_class" db:"task_class"`
	Description string    `json:"description" db:"description"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TaskClass is a row of the task_classes projection table
type TaskClass struct {
	Name        string    `json:"name" db:"name"`
	Timeout     int       `json:"timeout" db:"timeout"`
	Description string    `json:"description" db:"description"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Prompt is a catalog entry for a reusable prompt template
type Prompt struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ToAPI converts internal Session to API type
func (s *Session) ToAPI() *v1.Session {
	return &v1.Session{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Status:      s.Status,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// ToAPI converts internal Queue to API type. Stats are attached by the
// caller when requested.
func (q *Queue) ToAPI() *v1.Queue {
	return &v1.Queue{
		ID:           q.ID,
		SessionID:    q.SessionID,
		Name:         q.Name,
		Instructions: q.Instructions,
		Status:       q.Status,
		EndedAt:      q.EndedAt,
		ArchivedAt:   q.ArchivedAt,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

// ToAPI converts internal Task to API type
func (t *Task) ToAPI() *v1.Task {
	return &v1.Task{
		ID:            t.ID,
		FriendlyID:    t.FriendlyID,
		QueueID:       t.QueueID,
		ToolName:      t.ToolName,
		TaskClass:     t.TaskClass,
		Payload:       t.Payload,
		Status:        t.Status,
		Timeout:       t.Timeout,
		Attempts:      t.Attempts,
		Result:        t.Result,
		ResultSummary: t.ResultSummary,
		Error:         t.Error,
		ErrorMessage:  t.ErrorMessage,
		StaleWarnedAt: t.StaleWarnedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		StartedAt:     t.StartedAt,
		FinishedAt:    t.FinishedAt,
		ClaimedAt:     t.ClaimedAt,
		CompletedAt:   t.CompletedAt,
		FailedAt:      t.FailedAt,
	}
}

// ToAPI converts internal Prompt to API type
func (p *Prompt) ToAPI() *v1.Prompt {
	return &v1.Prompt{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
