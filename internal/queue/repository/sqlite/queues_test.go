package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func TestRepository_QueueCRUD(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "qsession")

	// Create
	queue := &models.Queue{SessionID: session.ID, Name: "payments", Instructions: "follow the runbook"}
	if err := repo.CreateQueue(ctx, queue); err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	if queue.ID == "" {
		t.Error("expected queue ID to be set")
	}
	if queue.Status != v1.QueueStatusActive {
		t.Errorf("expected status active, got %s", queue.Status)
	}

	// Get
	retrieved, err := repo.GetQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("failed to get queue: %v", err)
	}
	if retrieved.Name != "payments" {
		t.Errorf("expected name 'payments', got %s", retrieved.Name)
	}
	if retrieved.Instructions != "follow the runbook" {
		t.Errorf("expected instructions to round-trip, got %s", retrieved.Instructions)
	}

	// Get by name
	byName, err := repo.GetQueueByName(ctx, "payments")
	if err != nil {
		t.Fatalf("failed to get queue by name: %v", err)
	}
	if byName.ID != queue.ID {
		t.Errorf("expected ID %s, got %s", queue.ID, byName.ID)
	}

	// Update
	queue.Name = "payments-v2"
	if err := repo.UpdateQueue(ctx, queue); err != nil {
		t.Fatalf("failed to update queue: %v", err)
	}
	retrieved, _ = repo.GetQueue(ctx, queue.ID)
	if retrieved.Name != "payments-v2" {
		t.Errorf("expected name 'payments-v2', got %s", retrieved.Name)
	}

	// Delete
	if err := repo.DeleteQueue(ctx, queue.ID); err != nil {
		t.Fatalf("failed to delete queue: %v", err)
	}
	if _, err := repo.GetQueue(ctx, queue.ID); err == nil {
		t.Error("expected queue to be deleted")
	}
}

func TestRepository_QueueNotFound(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.GetQueue(ctx, "nonexistent"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if err := repo.UpdateQueue(ctx, &models.Queue{ID: "nonexistent", Name: "x"}); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if err := repo.DeleteQueue(ctx, "nonexistent"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	_, err := repo.SetQueueStatus(ctx, "nonexistent", []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusEnded)
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestRepository_CreateQueueUnknownSession(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.CreateQueue(ctx, &models.Queue{SessionID: "ses_missing", Name: "orphan"})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found error for unknown session, got %v", err)
	}
}

func TestRepository_ListQueues(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	sessionA := createTestSession(t, repo, "list-a")
	sessionB := createTestSession(t, repo, "list-b")
	createTestQueue(t, repo, sessionA.ID, "fix-bugs")
	createTestQueue(t, repo, sessionA.ID, "fix-docs")
	createTestQueue(t, repo, sessionB.ID, "deploy")

	all, err := repo.ListQueues(ctx, "", "")
	if err != nil {
		t.Fatalf("failed to list queues: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 queues, got %d", len(all))
	}

	bySession, err := repo.ListQueues(ctx, sessionA.ID, "")
	if err != nil {
		t.Fatalf("failed to list queues for session: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("expected 2 queues in session, got %d", len(bySession))
	}

	byQuery, err := repo.ListQueues(ctx, "", "fix")
	if err != nil {
		t.Fatalf("failed to list queues by query: %v", err)
	}
	if len(byQuery) != 2 {
		t.Errorf("expected 2 queues matching 'fix', got %d", len(byQuery))
	}

	both, err := repo.ListQueues(ctx, sessionB.ID, "fix")
	if err != nil {
		t.Fatalf("failed to list queues with both filters: %v", err)
	}
	if len(both) != 0 {
		t.Errorf("expected 0 queues, got %d", len(both))
	}
}

func TestRepository_SetQueueStatus(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "transitions")
	queue := createTestQueue(t, repo, session.ID, "trans-queue")

	// active -> ended
	ended, err := repo.SetQueueStatus(ctx, queue.ID, []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusEnded)
	if err != nil {
		t.Fatalf("failed to end queue: %v", err)
	}
	if ended.Status != v1.QueueStatusEnded {
		t.Errorf("expected status ended, got %s", ended.Status)
	}
	if ended.EndedAt == nil {
		t.Error("expected EndedAt to be set")
	}

	// ended -> ended is a conflict naming the current status
	_, err = repo.SetQueueStatus(ctx, queue.ID, []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusEnded)
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ended") {
		t.Errorf("expected conflict to name current status, got %q", err.Error())
	}

	// ended -> archived
	archived, err := repo.SetQueueStatus(ctx, queue.ID, []v1.QueueStatus{v1.QueueStatusActive, v1.QueueStatusEnded}, v1.QueueStatusArchived)
	if err != nil {
		t.Fatalf("failed to archive queue: %v", err)
	}
	if archived.Status != v1.QueueStatusArchived {
		t.Errorf("expected status archived, got %s", archived.Status)
	}
	if archived.ArchivedAt == nil {
		t.Error("expected ArchivedAt to be set")
	}

	// archived -> active clears the archive timestamp
	restored, err := repo.SetQueueStatus(ctx, queue.ID, []v1.QueueStatus{v1.QueueStatusArchived}, v1.QueueStatusActive)
	if err != nil {
		t.Fatalf("failed to unarchive queue: %v", err)
	}
	if restored.Status != v1.QueueStatusActive {
		t.Errorf("expected status active, got %s", restored.Status)
	}
	if restored.ArchivedAt != nil {
		t.Error("expected ArchivedAt to be cleared")
	}
}

func TestRepository_QueueStats(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "stats")
	queue := createTestQueue(t, repo, session.ID, "stats-queue")

	t1 := createTestTask(t, repo, queue.ID, "run-bash")
	t2 := createTestTask(t, repo, queue.ID, "run-bash")
	createTestTask(t, repo, queue.ID, "run-bash")
	createTestTask(t, repo, queue.ID, "run-bash")

	// Move one to running and one through to each terminal status
	claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("failed to claim: %v", err)
	}
	if claimed.ID != t1.ID {
		t.Fatalf("expected oldest task %s claimed, got %s", t1.ID, claimed.ID)
	}
	if _, err := repo.MarkRunningToSucceeded(ctx, claimed.ID, "done", ""); err != nil {
		t.Fatalf("failed to complete: %v", err)
	}
	if _, err := repo.MarkToFailed(ctx, t2.ID, "broken", ""); err != nil {
		t.Fatalf("failed to fail: %v", err)
	}
	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("failed to claim second: %v", err)
	}

	stats, err := repo.QueueStats(ctx, queue.ID)
	if err != nil {
		t.Fatalf("failed to get queue stats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("expected total 4, got %d", stats.Total)
	}
	if stats.Done != 2 {
		t.Errorf("expected done 2, got %d", stats.Done)
	}
	if stats.Running != 1 {
		t.Errorf("expected running 1, got %d", stats.Running)
	}
	if stats.Queued != 1 {
		t.Errorf("expected queued 1, got %d", stats.Queued)
	}
}

func TestRepository_DeleteQueueCascades(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "queue-cascade")
	queue := createTestQueue(t, repo, session.ID, "doomed")
	task := createTestTask(t, repo, queue.ID, "run-bash")

	if err := repo.DeleteQueue(ctx, queue.ID); err != nil {
		t.Fatalf("failed to delete queue: %v", err)
	}
	if _, err := repo.GetTask(ctx, task.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected task to be cascade-deleted, got %v", err)
	}
	// Session survives
	if _, err := repo.GetSession(ctx, session.ID); err != nil {
		t.Errorf("expected session to survive queue delete, got %v", err)
	}
}
