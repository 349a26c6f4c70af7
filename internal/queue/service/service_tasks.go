package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository"
	"github.com/sparkq/sparkq/internal/registry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// scriptToolName is the tool a script quick-add enqueues for when the
// caller names none.
const scriptToolName = "run-script"

// EnqueueTask creates a queued task. The queue must exist and be active.
// Unregistered tool or class names are accepted with a warning; the timeout
// falls back through the resolution policy.
func (s *Service) EnqueueTask(ctx context.Context, req v1.CreateTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.ToolName) == "" {
		return nil, apperr.Validation("tool_name is required")
	}
	if req.Timeout < 0 {
		return nil, apperr.Validation("timeout must be positive")
	}

	queue, err := s.store.GetQueue(ctx, req.QueueID)
	if err != nil {
		return nil, err
	}
	if queue.Status != v1.QueueStatusActive {
		return nil, apperr.Conflictf("cannot enqueue into queue %s: status is %s", queue.ID, queue.Status)
	}

	taskClass := req.TaskClass
	tool, toolKnown := s.registry.ToolByName(req.ToolName)
	if !toolKnown {
		s.logger.Warn("Enqueueing task with unregistered tool", zap.String("tool_name", req.ToolName))
	}
	if taskClass == "" && toolKnown {
		taskClass = tool.TaskClass
	}
	if taskClass != "" {
		if _, ok := s.registry.TaskClassByName(taskClass); !ok {
			s.logger.Warn("Enqueueing task with unregistered task class", zap.String("task_class", taskClass))
		}
	}

	task := &models.Task{
		QueueID:   queue.ID,
		ToolName:  req.ToolName,
		TaskClass: taskClass,
		Payload:   req.Payload,
		Timeout:   s.resolveTimeout(req.Timeout, taskClass),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	s.logger.WithTaskID(task.ID).WithQueueID(queue.ID).Info("Task enqueued",
		zap.String("friendly_id", task.FriendlyID),
		zap.String("tool_name", task.ToolName),
		zap.Int("timeout", task.Timeout))
	s.publish(ctx, events.TaskEnqueued, s.taskEventData(task))
	return task, nil
}

// resolveTimeout implements the enqueue timeout policy: an explicit positive
// timeout wins, then the resolved task class, then the compiled class
// default, then the global fallback.
func (s *Service) resolveTimeout(explicit int, taskClass string) int {
	if explicit > 0 {
		return explicit
	}
	if class, ok := s.registry.TaskClassByName(taskClass); ok {
		return class.Timeout
	}
	if timeout, ok := registry.BuiltinClassTimeout(taskClass); ok {
		return timeout
	}
	return registry.FallbackTimeoutSeconds
}

// ClaimTask hands the oldest queued task in a queue to a worker. Returns
// (nil, nil) when the queue is empty. The worker ID is echoed into the
// claim event but never persisted.
func (s *Service) ClaimTask(ctx context.Context, queueID, workerID string) (*models.Task, error) {
	if _, err := s.store.GetQueue(ctx, queueID); err != nil {
		return nil, err
	}

	task, err := s.store.ClaimQueuedInQueue(ctx, queueID)
	if err != nil || task == nil {
		return task, err
	}

	s.logger.WithTaskID(task.ID).WithQueueID(queueID).Info("Task claimed",
		zap.String("worker_id", workerID),
		zap.Int("attempts", task.Attempts))
	data := s.taskEventData(task)
	if workerID != "" {
		data["worker_id"] = workerID
	}
	s.publish(ctx, events.TaskClaimed, data)
	return task, nil
}

// CompleteTask marks a running task succeeded.
func (s *Service) CompleteTask(ctx context.Context, id string, req v1.CompleteTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.ResultSummary) == "" {
		return nil, apperr.Validation("result_summary is required")
	}

	task, err := s.store.MarkRunningToSucceeded(ctx, id, req.ResultSummary, req.ResultData)
	if err != nil {
		return nil, err
	}

	s.logger.WithTaskID(id).Info("Task completed", zap.String("result_summary", req.ResultSummary))
	s.publish(ctx, events.TaskCompleted, s.taskEventData(task))
	return task, nil
}

// FailTask marks a queued or running task failed.
func (s *Service) FailTask(ctx context.Context, id string, req v1.FailTaskRequest) (*models.Task, error) {
	if strings.TrimSpace(req.ErrorMessage) == "" {
		return nil, apperr.Validation("error_message is required")
	}

	task, err := s.store.MarkToFailed(ctx, id, req.ErrorMessage, req.ErrorType)
	if err != nil {
		return nil, err
	}

	s.logger.WithTaskID(id).Info("Task failed",
		zap.String("error_type", req.ErrorType),
		zap.String("error_message", req.ErrorMessage))
	data := s.taskEventData(task)
	data["error"] = task.Error
	s.publish(ctx, events.TaskFailed, data)
	return task, nil
}

// RequeueTask clones a terminal task into a fresh queued one. The original
// row stays as it is for audit.
func (s *Service) RequeueTask(ctx context.Context, id string) (*models.Task, error) {
	clone, err := s.store.CloneForRequeue(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.WithTaskID(clone.ID).WithQueueID(clone.QueueID).Info("Task requeued",
		zap.String("source_task_id", id))
	data := s.taskEventData(clone)
	data["source_task_id"] = id
	s.publish(ctx, events.TaskRequeued, data)
	return clone, nil
}

// GetTask returns a task by ID.
func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// ListTasks returns tasks in claim order with the total count for the
// same filters.
func (s *Service) ListTasks(ctx context.Context, opts repository.ListTasksOptions) ([]*models.Task, int, error) {
	return s.store.ListTasks(ctx, opts)
}

// UpdateTask changes a task's work definition. Status is never updatable
// here; lifecycle transitions own it.
func (s *Service) UpdateTask(ctx context.Context, id string, req v1.UpdateTaskRequest) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.ToolName != nil {
		if strings.TrimSpace(*req.ToolName) == "" {
			return nil, apperr.Validation("tool_name must not be empty")
		}
		task.ToolName = *req.ToolName
	}
	if req.TaskClass != nil {
		task.TaskClass = *req.TaskClass
	}
	if req.Payload != nil {
		task.Payload = *req.Payload
	}
	if req.Timeout != nil {
		if *req.Timeout < 1 {
			return nil, apperr.Validation("timeout must be positive")
		}
		task.Timeout = *req.Timeout
	}

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TaskUpdated, s.taskEventData(task))
	return task, nil
}

// DeleteTask removes a task row entirely. Requeue is the non-destructive
// alternative for retries.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}

	s.logger.WithTaskID(id).Info("Task deleted")
	s.publish(ctx, events.TaskDeleted, map[string]interface{}{"task_id": id})
	return nil
}

// QuickAdd enqueues a task from a compact description. Quick-add is
// stricter than plain enqueue: the tool must be registered because class
// and timeout are derived from it.
func (s *Service) QuickAdd(ctx context.Context, req v1.QuickAddRequest) (*models.Task, error) {
	toolName := req.ToolName
	switch req.Mode {
	case v1.QuickAddModeLLM:
		if strings.TrimSpace(req.Prompt) == "" {
			return nil, apperr.Validation("prompt is required for llm quick-add")
		}
		if toolName == "" {
			return nil, apperr.Validation("tool_name is required for llm quick-add")
		}
	case v1.QuickAddModeScript:
		if strings.TrimSpace(req.ScriptPath) == "" {
			return nil, apperr.Validation("script_path is required for script quick-add")
		}
		if toolName == "" {
			toolName = scriptToolName
		}
	default:
		return nil, apperr.Validationf("unknown quick-add mode %q", req.Mode)
	}

	tool, ok := s.registry.ToolByName(toolName)
	if !ok {
		return nil, apperr.Validationf("unknown tool %q", toolName)
	}

	payload, err := quickAddPayload(req)
	if err != nil {
		return nil, err
	}

	return s.EnqueueTask(ctx, v1.CreateTaskRequest{
		QueueID:   req.QueueID,
		ToolName:  toolName,
		TaskClass: tool.TaskClass,
		Payload:   payload,
	})
}

// quickAddPayload builds the canonical payload document for a quick-add.
// Kept pure so the payload shape is testable on its own.
func quickAddPayload(req v1.QuickAddRequest) (string, error) {
	switch req.Mode {
	case v1.QuickAddModeLLM:
		doc := struct {
			Mode   string `json:"mode"`
			Prompt string `json:"prompt"`
		}{Mode: v1.QuickAddModeLLM, Prompt: req.Prompt}
		data, err := json.Marshal(doc)
		return string(data), err
	case v1.QuickAddModeScript:
		args := req.ScriptArgs
		if args == nil {
			args = []string{}
		}
		doc := struct {
			Mode       string   `json:"mode"`
			ScriptPath string   `json:"script_path"`
			ScriptArgs []string `json:"script_args"`
		}{Mode: v1.QuickAddModeScript, ScriptPath: req.ScriptPath, ScriptArgs: args}
		data, err := json.Marshal(doc)
		return string(data), err
	}
	return "", apperr.Validationf("unknown quick-add mode %q", req.Mode)
}

func (s *Service) taskEventData(task *models.Task) map[string]interface{} {
	return map[string]interface{}{
		"task_id":     task.ID,
		"friendly_id": task.FriendlyID,
		"queue_id":    task.QueueID,
		"tool_name":   task.ToolName,
		"status":      string(task.Status),
		"attempts":    task.Attempts,
	}
}
