package models

import (
	"testing"
	"time"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func TestTaskStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		status   v1.TaskStatus
		expected string
		terminal bool
	}{
		{"queued status", v1.TaskStatusQueued, "queued", false},
		{"running status", v1.TaskStatusRunning, "running", false},
		{"succeeded status", v1.TaskStatusSucceeded, "succeeded", true},
		{"failed status", v1.TaskStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.status) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(tt.status))
			}
			if tt.status.IsTerminal() != tt.terminal {
				t.Errorf("expected IsTerminal=%v for %s", tt.terminal, tt.status)
			}
		})
	}
}

func TestTaskToAPI(t *testing.T) {
	now := time.Now().UTC()
	started := now.Add(time.Second)
	task := &Task{
		ID:            "tsk_a1b2c3d4e5f6",
		FriendlyID:    "default-e5f6",
		QueueID:       "que_0123456789ab",
		ToolName:      "run-bash",
		TaskClass:     "MEDIUM_SCRIPT",
		Payload:       `{"mode":"script"}`,
		Status:        v1.TaskStatusRunning,
		Timeout:       600,
		Attempts:      1,
		CreatedAt:     now,
		UpdatedAt:     started,
		StartedAt:     &started,
		ClaimedAt:     &started,
	}

	apiTask := task.ToAPI()

	if apiTask.ID != task.ID {
		t.Errorf("expected ID %s, got %s", task.ID, apiTask.ID)
	}
	if apiTask.FriendlyID != task.FriendlyID {
		t.Errorf("expected FriendlyID %s, got %s", task.FriendlyID, apiTask.FriendlyID)
	}
	if apiTask.QueueID != task.QueueID {
		t.Errorf("expected QueueID %s, got %s", task.QueueID, apiTask.QueueID)
	}
	if apiTask.Status != v1.TaskStatusRunning {
		t.Errorf("expected status running, got %s", apiTask.Status)
	}
	if apiTask.Timeout != 600 {
		t.Errorf("expected timeout 600, got %d", apiTask.Timeout)
	}
	if apiTask.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", apiTask.Attempts)
	}
	if apiTask.StartedAt == nil || !apiTask.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, apiTask.StartedAt)
	}
	if apiTask.CompletedAt != nil {
		t.Errorf("expected nil completed_at, got %v", apiTask.CompletedAt)
	}
}

func TestQueueToAPI(t *testing.T) {
	now := time.Now().UTC()
	archived := now.Add(time.Hour)
	queue := &Queue{
		ID:           "que_0123456789ab",
		SessionID:    "ses_fedcba987654",
		Name:         "default",
		Instructions: "run bash",
		Status:       v1.QueueStatusArchived,
		ArchivedAt:   &archived,
		CreatedAt:    now,
		UpdatedAt:    archived,
	}

	apiQueue := queue.ToAPI()

	if apiQueue.ID != queue.ID {
		t.Errorf("expected ID %s, got %s", queue.ID, apiQueue.ID)
	}
	if apiQueue.SessionID != queue.SessionID {
		t.Errorf("expected SessionID %s, got %s", queue.SessionID, apiQueue.SessionID)
	}
	if apiQueue.Status != v1.QueueStatusArchived {
		t.Errorf("expected status archived, got %s", apiQueue.Status)
	}
	if apiQueue.ArchivedAt == nil || !apiQueue.ArchivedAt.Equal(archived) {
		t.Errorf("expected archived_at %v, got %v", archived, apiQueue.ArchivedAt)
	}
	if apiQueue.Stats != nil {
		t.Errorf("expected nil stats on bare conversion, got %v", apiQueue.Stats)
	}
}

func TestSessionToAPI(t *testing.T) {
	now := time.Now().UTC()
	session := &Session{
		ID:        "ses_fedcba987654",
		Name:      "demo",
		Status:    v1.SessionStatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	apiSession := session.ToAPI()

	if apiSession.ID != session.ID {
		t.Errorf("expected ID %s, got %s", session.ID, apiSession.ID)
	}
	if apiSession.Name != "demo" {
		t.Errorf("expected name demo, got %s", apiSession.Name)
	}
	if apiSession.Status != v1.SessionStatusActive {
		t.Errorf("expected status active, got %s", apiSession.Status)
	}
	if apiSession.EndedAt != nil {
		t.Errorf("expected nil ended_at, got %v", apiSession.EndedAt)
	}
}
