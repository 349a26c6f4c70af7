// Package events provides event subjects and the bus provider for the
// SparkQ event system.
package events

// Event types for tasks
const (
	TaskEnqueued    = "task.enqueued"
	TaskClaimed     = "task.claimed"
	TaskCompleted   = "task.completed"
	TaskFailed      = "task.failed"
	TaskRequeued    = "task.requeued"
	TaskAutoFailed  = "task.auto_failed"
	TaskStaleWarned = "task.stale_warned"
	TaskUpdated     = "task.updated"
	TaskDeleted     = "task.deleted"
)

// Event types for queues
const (
	QueueCreated    = "queue.created"
	QueueUpdated    = "queue.updated"
	QueueEnded      = "queue.ended"
	QueueArchived   = "queue.archived"
	QueueUnarchived = "queue.unarchived"
	QueueDeleted    = "queue.deleted"
)

// Event types for sessions
const (
	SessionCreated = "session.created"
	SessionUpdated = "session.updated"
	SessionEnded   = "session.ended"
	SessionDeleted = "session.deleted"
)

// Event types for configuration
const (
	ConfigUpdated  = "config.updated"
	ConfigDeleted  = "config.deleted"
	ConfigReloaded = "config.reloaded"
)

// Wildcard subjects for feed subscribers (NATS-style: > matches one or
// more trailing tokens).
const (
	TaskWildcard    = "task.>"
	QueueWildcard   = "queue.>"
	SessionWildcard = "session.>"
	ConfigWildcard  = "config.>"
)

// AllWildcards lists every subject family the live feed forwards.
func AllWildcards() []string {
	return []string{TaskWildcard, QueueWildcard, SessionWildcard, ConfigWildcard}
}
