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

// CreateQueue creates a queue under an active session. Queues created
// without instructions inherit the configured default.
func (s *Service) CreateQueue(ctx context.Context, sessionID string, req v1.CreateQueueRequest) (*models.Queue, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("queue name is required")
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != v1.SessionStatusActive {
		return nil, apperr.Conflictf("cannot create queue in session %s: status is %s", session.ID, session.Status)
	}

	instructions := req.Instructions
	if instructions == "" {
		instructions = s.registry.QueueDefaults().Instructions
	}

	queue := &models.Queue{SessionID: session.ID, Name: name, Instructions: instructions}
	if err := s.store.CreateQueue(ctx, queue); err != nil {
		return nil, err
	}

	s.logger.WithQueueID(queue.ID).WithSessionID(session.ID).Info("Queue created", zap.String("name", queue.Name))
	s.publish(ctx, events.QueueCreated, s.queueEventData(queue))
	return queue, nil
}

// GetQueue returns a queue by ID.
func (s *Service) GetQueue(ctx context.Context, id string) (*models.Queue, error) {
	return s.store.GetQueue(ctx, id)
}

// GetQueueByName returns a queue by its unique name.
func (s *Service) GetQueueByName(ctx context.Context, name string) (*models.Queue, error) {
	return s.store.GetQueueByName(ctx, name)
}

// ListQueues returns queues, optionally narrowed to a session and by a
// name substring.
func (s *Service) ListQueues(ctx context.Context, sessionID, query string) ([]*models.Queue, error) {
	return s.store.ListQueues(ctx, sessionID, query)
}

// UpdateQueue changes a queue's name or instructions.
func (s *Service) UpdateQueue(ctx context.Context, id string, req v1.UpdateQueueRequest) (*models.Queue, error) {
	queue, err := s.store.GetQueue(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("queue name must not be empty")
		}
		queue.Name = name
	}
	if req.Instructions != nil {
		queue.Instructions = *req.Instructions
	}

	if err := s.store.UpdateQueue(ctx, queue); err != nil {
		return nil, err
	}

	s.publish(ctx, events.QueueUpdated, s.queueEventData(queue))
	return queue, nil
}

// EndQueue transitions an active queue to ended. Ended is terminal for the
// queue; its tasks keep whatever status they have.
func (s *Service) EndQueue(ctx context.Context, id string) (*models.Queue, error) {
	queue, err := s.store.SetQueueStatus(ctx, id, []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusEnded)
	if err != nil {
		return nil, err
	}

	s.logger.WithQueueID(id).Info("Queue ended")
	s.publish(ctx, events.QueueEnded, s.queueEventData(queue))
	return queue, nil
}

// ArchiveQueue puts an active queue aside. Archived queues reject new
// enqueues until unarchived.
func (s *Service) ArchiveQueue(ctx context.Context, id string) (*models.Queue, error) {
	queue, err := s.store.SetQueueStatus(ctx, id, []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusArchived)
	if err != nil {
		return nil, err
	}

	s.logger.WithQueueID(id).Info("Queue archived")
	s.publish(ctx, events.QueueArchived, s.queueEventData(queue))
	return queue, nil
}

// UnarchiveQueue brings an archived queue back to active.
func (s *Service) UnarchiveQueue(ctx context.Context, id string) (*models.Queue, error) {
	queue, err := s.store.SetQueueStatus(ctx, id, []v1.QueueStatus{v1.QueueStatusArchived}, v1.QueueStatusActive)
	if err != nil {
		return nil, err
	}

	s.logger.WithQueueID(id).Info("Queue unarchived")
	s.publish(ctx, events.QueueUnarchived, s.queueEventData(queue))
	return queue, nil
}

// DeleteQueue removes a queue. Its tasks cascade in the store.
func (s *Service) DeleteQueue(ctx context.Context, id string) error {
	if err := s.store.DeleteQueue(ctx, id); err != nil {
		return err
	}

	s.logger.WithQueueID(id).Info("Queue deleted")
	s.publish(ctx, events.QueueDeleted, map[string]interface{}{"queue_id": id})
	return nil
}

// QueueStats returns the point-in-time task counts for a queue.
func (s *Service) QueueStats(ctx context.Context, id string) (*v1.QueueStats, error) {
	if _, err := s.store.GetQueue(ctx, id); err != nil {
		return nil, err
	}
	return s.store.QueueStats(ctx, id)
}

func (s *Service) queueEventData(queue *models.Queue) map[string]interface{} {
	return map[string]interface{}{
		"queue_id":   queue.ID,
		"session_id": queue.SessionID,
		"name":       queue.Name,
		"status":     string(queue.Status),
	}
}
