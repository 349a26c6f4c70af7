package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/db"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/events/bus"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository/sqlite"
	"github.com/sparkq/sparkq/internal/registry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T) (*Service, *bus.MemoryEventBus) {
	t.Helper()
	pool, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "service_test.db")})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	repo, err := sqlite.NewWithDB(pool.Writer(), pool.Reader())
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	reg, err := registry.New(context.Background(), repo, &config.Config{}, logger.Default())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	eventBus := bus.NewMemoryEventBus(logger.Default())
	t.Cleanup(eventBus.Close)

	return New(repo, reg, eventBus, logger.Default()), eventBus
}

// recordEvents captures the type of every event published on a subject
// pattern. MemoryEventBus dispatches synchronously, so events are visible
// as soon as the service call returns.
func recordEvents(t *testing.T, eventBus *bus.MemoryEventBus, pattern string) func() []string {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	_, err := eventBus.Subscribe(pattern, func(ctx context.Context, event *bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to subscribe to %s: %v", pattern, err)
	}
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}

func mustCreateSession(t *testing.T, svc *Service, name string) *models.Session {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), v1.CreateSessionRequest{Name: name})
	if err != nil {
		t.Fatalf("failed to create session %s: %v", name, err)
	}
	return session
}

func mustCreateQueue(t *testing.T, svc *Service, sessionID, name string) *models.Queue {
	t.Helper()
	queue, err := svc.CreateQueue(context.Background(), sessionID, v1.CreateQueueRequest{Name: name})
	if err != nil {
		t.Fatalf("failed to create queue %s: %v", name, err)
	}
	return queue
}

func TestCreateSession(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()
	seen := recordEvents(t, eventBus, events.SessionWildcard)

	session, err := svc.CreateSession(ctx, v1.CreateSessionRequest{Name: "  demo  ", Description: "first run"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Name != "demo" {
		t.Errorf("expected trimmed name %q, got %q", "demo", session.Name)
	}
	if session.Status != v1.SessionStatusActive {
		t.Errorf("expected status active, got %s", session.Status)
	}
	if session.ID == "" {
		t.Error("expected a generated id")
	}

	if _, err := svc.CreateSession(ctx, v1.CreateSessionRequest{Name: "   "}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}

	got := seen()
	if len(got) != 1 || got[0] != events.SessionCreated {
		t.Errorf("expected [%s], got %v", events.SessionCreated, got)
	}
}

func TestSessionLookupAndUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "alpha")

	byName, err := svc.GetSessionByName(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetSessionByName failed: %v", err)
	}
	if byName.ID != session.ID {
		t.Errorf("expected session %s, got %s", session.ID, byName.ID)
	}

	if _, err := svc.GetSessionByName(ctx, "missing"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	updated, err := svc.UpdateSession(ctx, session.ID, v1.UpdateSessionRequest{
		Name:        ptr("alpha-2"),
		Description: ptr("renamed"),
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}
	if updated.Name != "alpha-2" || updated.Description != "renamed" {
		t.Errorf("unexpected update result: name=%q description=%q", updated.Name, updated.Description)
	}

	if _, err := svc.UpdateSession(ctx, session.ID, v1.UpdateSessionRequest{Name: ptr("  ")}); !apperr.IsValidation(err) {
		t.Errorf("expected validation error for blank rename, got %v", err)
	}
}

func TestEndSession(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()
	seen := recordEvents(t, eventBus, events.SessionWildcard)
	session := mustCreateSession(t, svc, "short-lived")

	ended, err := svc.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if ended.Status != v1.SessionStatusEnded {
		t.Errorf("expected status ended, got %s", ended.Status)
	}
	if ended.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}

	// Ending twice is a status conflict, not a success.
	if _, err := svc.EndSession(ctx, session.ID); !apperr.IsConflict(err) {
		t.Errorf("expected conflict on second end, got %v", err)
	}

	got := seen()
	want := []string{events.SessionCreated, events.SessionEnded}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "doomed")
	queue := mustCreateQueue(t, svc, session.ID, "work")
	task, err := svc.EnqueueTask(ctx, v1.CreateTaskRequest{QueueID: queue.ID, ToolName: "run-bash"})
	if err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := svc.GetSession(ctx, session.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected session to be gone, got %v", err)
	}
	if _, err := svc.GetQueue(ctx, queue.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected queue to be gone, got %v", err)
	}
	if _, err := svc.GetTask(ctx, task.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected task to be gone, got %v", err)
	}
}

func TestCreateQueue(t *testing.T) {
	svc, eventBus := newTestService(t)
	ctx := context.Background()
	seen := recordEvents(t, eventBus, events.QueueWildcard)
	session := mustCreateSession(t, svc, "demo")

	queue, err := svc.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "default", Instructions: "be quick"})
	if err != nil {
		t.Fatalf("CreateQueue failed: %v", err)
	}
	if queue.SessionID != session.ID {
		t.Errorf("expected session %s, got %s", session.ID, queue.SessionID)
	}
	if queue.Status != v1.QueueStatusActive {
		t.Errorf("expected status active, got %s", queue.Status)
	}
	if queue.Instructions != "be quick" {
		t.Errorf("expected explicit instructions to stick, got %q", queue.Instructions)
	}

	if _, err := svc.CreateQueue(ctx, "no-such-session", v1.CreateQueueRequest{Name: "x"}); !apperr.IsNotFound(err) {
		t.Errorf("expected not found for missing session, got %v", err)
	}

	got := seen()
	if len(got) != 1 || got[0] != events.QueueCreated {
		t.Errorf("expected [%s], got %v", events.QueueCreated, got)
	}
}

func TestCreateQueueInheritsDefaultInstructions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "demo")

	err := svc.registry.Put(ctx, "defaults", "queue", map[string]interface{}{
		"instructions": "work top to bottom",
	})
	if err != nil {
		t.Fatalf("failed to set queue defaults: %v", err)
	}

	queue := mustCreateQueue(t, svc, session.ID, "default")
	if queue.Instructions != "work top to bottom" {
		t.Errorf("expected inherited instructions, got %q", queue.Instructions)
	}

	explicit, err := svc.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "other", Instructions: "reverse order"})
	if err != nil {
		t.Fatalf("CreateQueue failed: %v", err)
	}
	if explicit.Instructions != "reverse order" {
		t.Errorf("expected explicit instructions to win, got %q", explicit.Instructions)
	}
}

func TestCreateQueueInEndedSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "over")
	if _, err := svc.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	_, err := svc.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "late"})
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict for ended session, got %v", err)
	}
}

func TestQueueStatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "demo")

	t.Run("end", func(t *testing.T) {
		queue := mustCreateQueue(t, svc, session.ID, "to-end")
		ended, err := svc.EndQueue(ctx, queue.ID)
		if err != nil {
			t.Fatalf("EndQueue failed: %v", err)
		}
		if ended.Status != v1.QueueStatusEnded || ended.EndedAt == nil {
			t.Errorf("expected ended with timestamp, got %s %v", ended.Status, ended.EndedAt)
		}
		if _, err := svc.EndQueue(ctx, queue.ID); !apperr.IsConflict(err) {
			t.Errorf("expected conflict on second end, got %v", err)
		}
		// Ended is not archivable and not unarchivable.
		if _, err := svc.ArchiveQueue(ctx, queue.ID); !apperr.IsConflict(err) {
			t.Errorf("expected conflict archiving ended queue, got %v", err)
		}
		if _, err := svc.UnarchiveQueue(ctx, queue.ID); !apperr.IsConflict(err) {
			t.Errorf("expected conflict unarchiving ended queue, got %v", err)
		}
	})

	t.Run("archive and unarchive", func(t *testing.T) {
		queue := mustCreateQueue(t, svc, session.ID, "to-archive")
		archived, err := svc.ArchiveQueue(ctx, queue.ID)
		if err != nil {
			t.Fatalf("ArchiveQueue failed: %v", err)
		}
		if archived.Status != v1.QueueStatusArchived || archived.ArchivedAt == nil {
			t.Errorf("expected archived with timestamp, got %s %v", archived.Status, archived.ArchivedAt)
		}

		restored, err := svc.UnarchiveQueue(ctx, queue.ID)
		if err != nil {
			t.Fatalf("UnarchiveQueue failed: %v", err)
		}
		if restored.Status != v1.QueueStatusActive {
			t.Errorf("expected active after unarchive, got %s", restored.Status)
		}
		if _, err := svc.UnarchiveQueue(ctx, queue.ID); !apperr.IsConflict(err) {
			t.Errorf("expected conflict unarchiving active queue, got %v", err)
		}
	})

	t.Run("missing queue", func(t *testing.T) {
		if _, err := svc.EndQueue(ctx, "no-such-queue"); !apperr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestArchivedQueueBlocksEnqueue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "demo")
	queue := mustCreateQueue(t, svc, session.ID, "cold")

	if _, err := svc.ArchiveQueue(ctx, queue.ID); err != nil {
		t.Fatalf("ArchiveQueue failed: %v", err)
	}

	_, err := svc.EnqueueTask(ctx, v1.CreateTaskRequest{QueueID: queue.ID, ToolName: "run-bash"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict enqueueing into archived queue, got %v", err)
	}

	if _, err := svc.UnarchiveQueue(ctx, queue.ID); err != nil {
		t.Fatalf("UnarchiveQueue failed: %v", err)
	}

	task, err := svc.EnqueueTask(ctx, v1.CreateTaskRequest{QueueID: queue.ID, ToolName: "run-bash"})
	if err != nil {
		t.Fatalf("expected enqueue to succeed after unarchive: %v", err)
	}
	if task.Status != v1.TaskStatusQueued {
		t.Errorf("expected queued, got %s", task.Status)
	}
}

func TestQueueStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := mustCreateSession(t, svc, "demo")
	queue := mustCreateQueue(t, svc, session.ID, "work")

	for i := 0; i < 3; i++ {
		if _, err := svc.EnqueueTask(ctx, v1.CreateTaskRequest{QueueID: queue.ID, ToolName: "run-bash"}); err != nil {
			t.Fatalf("EnqueueTask failed: %v", err)
		}
	}
	claimed, err := svc.ClaimTask(ctx, queue.ID, "")
	if err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, claimed.ID, v1.CompleteTaskRequest{ResultSummary: "ok"}); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if _, err := svc.ClaimTask(ctx, queue.ID, ""); err != nil {
		t.Fatalf("second ClaimTask failed: %v", err)
	}

	stats, err := svc.QueueStats(ctx, queue.ID)
	if err != nil {
		t.Fatalf("QueueStats failed: %v", err)
	}
	if stats.Total != 3 || stats.Done != 1 || stats.Running != 1 || stats.Queued != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if _, err := svc.QueueStats(ctx, "no-such-queue"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found for missing queue, got %v", err)
	}
}

func TestNilEventBusIsAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	svc.eventBus = nil

	session, err := svc.CreateSession(context.Background(), v1.CreateSessionRequest{Name: "quiet"})
	if err != nil {
		t.Fatalf("CreateSession without a bus failed: %v", err)
	}
	if session.Name != "quiet" {
		t.Errorf("unexpected session name %q", session.Name)
	}
}
