package v1

import "time"

// QueueStatus represents the status of a queue
type QueueStatus string

const (
	QueueStatusActive   QueueStatus = "active"
	QueueStatusEnded    QueueStatus = "ended"
	QueueStatusArchived QueueStatus = "archived"
)

// Queue is a FIFO container of tasks within a session
type Queue struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"session_id"`
	Name         string      `json:"name"`
	Instructions string      `json:"instructions,omitempty"`
	Status       QueueStatus `json:"status"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`
	ArchivedAt   *time.Time  `json:"archived_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Stats        *QueueStats `json:"stats,omitempty"`
}

// QueueStats is a point-in-time count of a queue's tasks by status.
// Done covers both terminal statuses.
type QueueStats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

// CreateQueueRequest for creating a queue under a session
type CreateQueueRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	Instructions string `json:"instructions,omitempty"`
}

// UpdateQueueRequest for updating queue name or instructions
type UpdateQueueRequest struct {
	Name         *string `json:"name,omitempty" binding:"omitempty,max=200"`
	Instructions *string `json:"instructions,omitempty"`
}

// QueueList is the response for queue listing
type QueueList struct {
	Queues []*Queue `json:"queues"`
	Total  int      `json:"total"`
}
