// Package service implements SparkQ's task lifecycle and queue manager on
// top of the store, the config registry, and the event bus. Handlers and the
// CLI never touch the store directly; every mutation goes through here so
// events and business rules stay in one place.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events/bus"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository"
	"github.com/sparkq/sparkq/internal/registry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

const eventSource = "sparkq-core"

// Service carries the queue domain operations.
type Service struct {
	store    repository.Store
	registry *registry.Registry
	eventBus bus.EventBus
	logger   *logger.Logger
}

// New creates the domain service. The event bus may be nil in tools that
// only need the store side.
func New(store repository.Store, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		registry: reg,
		eventBus: eventBus,
		logger:   log,
	}
}

// publish sends a bus event. Publish failures are logged, never propagated;
// the state change already happened and the feed is best-effort.
func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, eventSource, data)
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish event", zap.String("event_type", eventType))
	}
}

// ProjectStats returns project-wide totals.
func (s *Service) ProjectStats(ctx context.Context) (*v1.ProjectStats, error) {
	return s.store.ProjectStats(ctx)
}

// ListPrompts returns the prompt catalog.
func (s *Service) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	return s.store.ListPrompts(ctx)
}

// GetPrompt returns one prompt by name.
func (s *Service) GetPrompt(ctx context.Context, name string) (*models.Prompt, error) {
	return s.store.GetPrompt(ctx, name)
}
