package v1

import "time"

// TaskStatus represents the lifecycle status of a task
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// Task represents a unit of work in a queue
type Task struct {
	ID            string     `json:"id"`
	FriendlyID    string     `json:"friendly_id"`
	QueueID       string     `json:"queue_id"`
	ToolName      string     `json:"tool_name"`
	TaskClass     string     `json:"task_class"`
	Payload       string     `json:"payload,omitempty"`
	Status        TaskStatus `json:"status"`
	Timeout       int        `json:"timeout"`
	Attempts      int        `json:"attempts"`
	Result        string     `json:"result,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StaleWarnedAt *time.Time `json:"stale_warned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
}

// CreateTaskRequest for enqueueing a new task
type CreateTaskRequest struct {
	QueueID   string `json:"queue_id" binding:"required"`
	ToolName  string `json:"tool_name" binding:"required"`
	TaskClass string `json:"task_class,omitempty"`
	Timeout   int    `json:"timeout,omitempty" binding:"omitempty,min=1"`
	Payload   string `json:"payload,omitempty"`
}

// UpdateTaskRequest for updating an existing task. Status is never
// updatable through this request; lifecycle transitions have their own
// operations.
type UpdateTaskRequest struct {
	ToolName  *string `json:"tool_name,omitempty"`
	TaskClass *string `json:"task_class,omitempty"`
	Timeout   *int    `json:"timeout,omitempty" binding:"omitempty,min=1"`
	Payload   *string `json:"payload,omitempty"`
}

// ClaimTaskRequest for claiming the oldest queued task in a queue
type ClaimTaskRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
}

// ClaimTaskResponse echoes the worker identifier back alongside the
// claimed task. The worker identifier is not persisted.
type ClaimTaskResponse struct {
	Task     *Task  `json:"task"`
	WorkerID string `json:"worker_id,omitempty"`
}

// CompleteTaskRequest for marking a running task succeeded
type CompleteTaskRequest struct {
	ResultSummary string `json:"result_summary" binding:"required"`
	ResultData    string `json:"result_data,omitempty"`
}

// FailTaskRequest for marking a task failed
type FailTaskRequest struct {
	ErrorMessage string `json:"error_message" binding:"required"`
	ErrorType    string `json:"error_type,omitempty"`
}

// Quick-add modes
const (
	QuickAddModeLLM    = "llm"
	QuickAddModeScript = "script"
)

// QuickAddRequest enqueues a task from a compact description. The llm
// mode takes a prompt and tool name; the script mode takes a script path
// and arguments. Task class and timeout are derived from the tool
// registry.
type QuickAddRequest struct {
	QueueID    string   `json:"queue_id" binding:"required"`
	Mode       string   `json:"mode" binding:"required"`
	Prompt     string   `json:"prompt,omitempty"`
	ToolName   string   `json:"tool_name,omitempty"`
	ScriptPath string   `json:"script_path,omitempty"`
	ScriptArgs []string `json:"script_args,omitempty"`
}

// TaskList is the response for task listing
type TaskList struct {
	Tasks  []*Task `json:"tasks"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
