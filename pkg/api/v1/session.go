package v1

import "time"

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session groups queues for one stretch of work
type Session struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CreateSessionRequest for creating a new session
type CreateSessionRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description,omitempty"`
}

// UpdateSessionRequest for updating session name or description
type UpdateSessionRequest struct {
	Name        *string `json:"name,omitempty" binding:"omitempty,max=200"`
	Description *string `json:"description,omitempty"`
}

// SessionList is the response for session listing
type SessionList struct {
	Sessions []*Session `json:"sessions"`
	Total    int        `json:"total"`
}
