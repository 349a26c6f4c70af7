package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// CreateSession creates a new active session.
func (s *Service) CreateSession(ctx context.Context, req v1.CreateSessionRequest) (*models.Session, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("session name is required")
	}

	session := &models.Session{Name: name, Description: req.Description}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.WithSessionID(session.ID).Info("Session created", zap.String("name", session.Name))
	s.publish(ctx, events.SessionCreated, map[string]interface{}{
		"session_id": session.ID,
		"name":       session.Name,
	})
	return session, nil
}

// GetSession returns a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return s.store.GetSession(ctx, id)
}

// GetSessionByName returns a session by its unique name.
func (s *Service) GetSessionByName(ctx context.Context, name string) (*models.Session, error) {
	return s.store.GetSessionByName(ctx, name)
}

// ListSessions returns sessions, optionally narrowed by a name substring.
func (s *Service) ListSessions(ctx context.Context, query string) ([]*models.Session, error) {
	return s.store.ListSessions(ctx, query)
}

// UpdateSession changes a session's name or description.
func (s *Service) UpdateSession(ctx context.Context, id string, req v1.UpdateSessionRequest) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("session name must not be empty")
		}
		session.Name = name
	}
	if req.Description != nil {
		session.Description = *req.Description
	}

	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	s.publish(ctx, events.SessionUpdated, map[string]interface{}{
		"session_id": session.ID,
		"name":       session.Name,
	})
	return session, nil
}

// EndSession marks a session ended. Ending is advisory: queues and tasks
// under the session are untouched.
func (s *Service) EndSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.store.EndSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithSessionID(id).Info("Session ended")
	s.publish(ctx, events.SessionEnded, map[string]interface{}{
		"session_id": session.ID,
		"name":       session.Name,
	})
	return session, nil
}

// DeleteSession removes a session. Its queues and their tasks cascade in
// the store.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}

	s.logger.WithSessionID(id).Info("Session deleted")
	s.publish(ctx, events.SessionDeleted, map[string]interface{}{"session_id": id})
	return nil
}
