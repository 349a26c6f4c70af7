package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/events/bus"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

// FeedForwarder bridges the event bus into the hub. Every domain event
// becomes a notification frame whose action is the event's subject, so
// clients can filter with the same patterns the bus uses.
type FeedForwarder struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

// ForwardBusEvents subscribes the hub to every event family and returns
// the forwarder. It unsubscribes itself when ctx is cancelled.
func ForwardBusEvents(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *FeedForwarder {
	f := &FeedForwarder{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws_forwarder")),
	}
	if eventBus == nil {
		return f
	}

	for _, subject := range events.AllWildcards() {
		f.subscribe(eventBus, subject)
	}

	go func() {
		<-ctx.Done()
		f.Close()
	}()

	return f
}

// Close drops the bus subscriptions. Safe to call more than once.
func (f *FeedForwarder) Close() {
	for _, sub := range f.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	f.subscriptions = nil
}

func (f *FeedForwarder) subscribe(eventBus bus.EventBus, subject string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		msg, err := ws.NewNotification(event.Type, event.Data)
		if err != nil {
			f.logger.Error("Failed to build feed notification",
				zap.String("event_type", event.Type), zap.Error(err))
			return nil
		}
		f.hub.Broadcast(event.Type, msg)
		return nil
	})
	if err != nil {
		f.logger.Error("Failed to subscribe to events",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	f.subscriptions = append(f.subscriptions, sub)
}
