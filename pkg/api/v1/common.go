package v1

import "time"

// ErrorBody carries the error kind and a human-readable message
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the uniform error envelope for all endpoints
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ProjectStats are project-wide totals reported by GET /stats
type ProjectStats struct {
	Sessions     int `json:"sessions"`
	Queues       int `json:"queues"`
	TasksQueued  int `json:"tasks_queued"`
	TasksRunning int `json:"tasks_running"`
}

// HealthResponse is the liveness report. Build and feature fields let a UI
// decide capabilities from the same probe it polls anyway.
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	UIBuild  string          `json:"ui_build,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// Prompt is a catalog entry for a reusable prompt template
type Prompt struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PromptList is the response for prompt listing
type PromptList struct {
	Prompts []*Prompt `json:"prompts"`
	Total   int       `json:"total"`
}
