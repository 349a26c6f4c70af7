// Package bus carries lifecycle events from the queue service to its
// observers: the WebSocket feed forwarder in-process, and external NATS
// consumers when a broker is configured.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one message on the bus. Type doubles as the publish subject
// (task.enqueued, queue.archived, ...) so feed filters and payloads stay
// aligned.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent stamps an event with a fresh id and the current UTC time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler consumes one delivered event. A returned error is logged;
// delivery is never retried.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is a live binding of a handler to a subject pattern.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus moves events between publishers and subscribers. Subjects are
// dotted names; subscription patterns may use NATS-style wildcards (`*` one
// token, `>` trailing tokens). Publishing is best-effort: the queue state
// machine never depends on a delivery.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	Close()
}
