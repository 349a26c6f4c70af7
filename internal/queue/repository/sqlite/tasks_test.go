package sqlite

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/db/dialect"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func TestRepository_TaskCRUD(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "tasks")
	queue := createTestQueue(t, repo, session.ID, "build")

	// Create
	task := &models.Task{QueueID: queue.ID, ToolName: "run-bash", TaskClass: "MEDIUM_SCRIPT", Timeout: 600, Payload: `{"command":"make"}`}
	if err := repo.CreateTask(ctx, task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	if task.ID == "" {
		t.Error("expected task ID to be set")
	}
	if task.Status != v1.TaskStatusQueued {
		t.Errorf("expected status queued, got %s", task.Status)
	}
	if !strings.HasPrefix(task.FriendlyID, "build-") {
		t.Errorf("expected friendly ID prefixed with queue name, got %s", task.FriendlyID)
	}
	if !strings.HasSuffix(task.ID, strings.TrimPrefix(task.FriendlyID, "build-")) {
		t.Errorf("expected friendly ID suffix from task ID, got %s for %s", task.FriendlyID, task.ID)
	}

	// Get
	retrieved, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if retrieved.Payload != `{"command":"make"}` {
		t.Errorf("expected payload to round-trip, got %s", retrieved.Payload)
	}
	if retrieved.Timeout != 600 {
		t.Errorf("expected timeout 600, got %d", retrieved.Timeout)
	}
	if retrieved.StartedAt != nil || retrieved.FinishedAt != nil {
		t.Error("expected no lifecycle timestamps on a queued task")
	}

	// Update descriptive fields
	task.ToolName = "run-python"
	task.Timeout = 120
	if err := repo.UpdateTask(ctx, task); err != nil {
		t.Fatalf("failed to update task: %v", err)
	}
	retrieved, _ = repo.GetTask(ctx, task.ID)
	if retrieved.ToolName != "run-python" {
		t.Errorf("expected tool 'run-python', got %s", retrieved.ToolName)
	}
	if retrieved.Timeout != 120 {
		t.Errorf("expected timeout 120, got %d", retrieved.Timeout)
	}

	// Delete
	if err := repo.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}
	if _, err := repo.GetTask(ctx, task.ID); err == nil {
		t.Error("expected task to be deleted")
	}
}

func TestRepository_TaskNotFound(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.GetTask(ctx, "nonexistent"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if err := repo.UpdateTask(ctx, &models.Task{ID: "nonexistent"}); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if err := repo.DeleteTask(ctx, "nonexistent"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, err := repo.MarkRunningToSucceeded(ctx, "nonexistent", "done", ""); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, err := repo.MarkToFailed(ctx, "nonexistent", "boom", ""); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, err := repo.CloneForRequeue(ctx, "nonexistent"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestRepository_CreateTaskUnknownQueue(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	err := repo.CreateTask(ctx, &models.Task{QueueID: "que_missing", ToolName: "run-bash"})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found error for unknown queue, got %v", err)
	}
}

func TestRepository_ClaimOrder(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "claim-order")
	queue := createTestQueue(t, repo, session.ID, "ordered")

	first := createTestTask(t, repo, queue.ID, "run-bash")
	second := createTestTask(t, repo, queue.ID, "run-bash")
	third := createTestTask(t, repo, queue.ID, "run-bash")

	for i, want := range []string{first.ID, second.ID, third.ID} {
		claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
		if err != nil {
			t.Fatalf("claim %d failed: %v", i, err)
		}
		if claimed == nil {
			t.Fatalf("claim %d returned no task", i)
		}
		if claimed.ID != want {
			t.Errorf("claim %d: expected %s, got %s", i, want, claimed.ID)
		}
		if claimed.Status != v1.TaskStatusRunning {
			t.Errorf("claim %d: expected status running, got %s", i, claimed.Status)
		}
		if claimed.Attempts != 1 {
			t.Errorf("claim %d: expected attempts 1, got %d", i, claimed.Attempts)
		}
		if claimed.ClaimedAt == nil || claimed.StartedAt == nil {
			t.Errorf("claim %d: expected claim timestamps to be set", i)
		}
	}

	// Queue drained
	claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("claim on drained queue failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected no task on drained queue, got %s", claimed.ID)
	}
}

func TestRepository_ClaimEmptyQueue(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "claim-empty")
	queue := createTestQueue(t, repo, session.ID, "empty")

	claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("claim on empty queue failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected nil task on empty queue, got %s", claimed.ID)
	}

	// Claims do not cross queues
	other := createTestQueue(t, repo, session.ID, "other")
	createTestTask(t, repo, other.ID, "run-bash")
	claimed, err = repo.ClaimQueuedInQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected nil task, got task from another queue: %s", claimed.ID)
	}
}

func TestRepository_ClaimConcurrent(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "claim-race")
	queue := createTestQueue(t, repo, session.ID, "contested")

	const taskCount = 4
	const workerCount = 8
	for i := 0; i < taskCount; i++ {
		createTestTask(t, repo, queue.ID, "run-bash")
	}

	results := make(chan *models.Task, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
			if err != nil {
				t.Errorf("concurrent claim failed: %v", err)
				return
			}
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	var empty int
	for claimed := range results {
		if claimed == nil {
			empty++
			continue
		}
		if seen[claimed.ID] {
			t.Errorf("task %s claimed twice", claimed.ID)
		}
		seen[claimed.ID] = true
	}
	if len(seen) != taskCount {
		t.Errorf("expected %d distinct claims, got %d", taskCount, len(seen))
	}
	if empty != workerCount-taskCount {
		t.Errorf("expected %d empty claims, got %d", workerCount-taskCount, empty)
	}
}

func TestRepository_MarkRunningToSucceeded(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "complete")
	queue := createTestQueue(t, repo, session.ID, "compl")
	task := createTestTask(t, repo, queue.ID, "run-bash")

	// Completing a queued task is a conflict
	_, err := repo.MarkRunningToSucceeded(ctx, task.ID, "done", "")
	if !apperr.IsConflict(err) {
		t.Fatalf("expected conflict completing a queued task, got %v", err)
	}
	if !strings.Contains(err.Error(), "queued") {
		t.Errorf("expected conflict to name current status, got %q", err.Error())
	}

	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	done, err := repo.MarkRunningToSucceeded(ctx, task.ID, "all tests pass", `{"exit_code":0}`)
	if err != nil {
		t.Fatalf("failed to complete task: %v", err)
	}
	if done.Status != v1.TaskStatusSucceeded {
		t.Errorf("expected status succeeded, got %s", done.Status)
	}
	if done.ResultSummary != "all tests pass" {
		t.Errorf("expected result summary to be stored, got %q", done.ResultSummary)
	}
	if done.Result != `{"exit_code":0}` {
		t.Errorf("expected result data to be stored, got %q", done.Result)
	}
	if done.CompletedAt == nil || done.FinishedAt == nil {
		t.Error("expected completion timestamps to be set")
	}

	// Completing twice is a conflict
	_, err = repo.MarkRunningToSucceeded(ctx, task.ID, "again", "")
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict completing a succeeded task, got %v", err)
	}
}

func TestRepository_MarkToFailed(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "fail")
	queue := createTestQueue(t, repo, session.ID, "failing")

	// A running task fails with a typed error
	running := createTestTask(t, repo, queue.ID, "run-bash")
	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	failed, err := repo.MarkToFailed(ctx, running.ID, "Task timeout (auto-failed)", "TIMEOUT")
	if err != nil {
		t.Fatalf("failed to fail task: %v", err)
	}
	if failed.Status != v1.TaskStatusFailed {
		t.Errorf("expected status failed, got %s", failed.Status)
	}
	if failed.Error != "TIMEOUT: Task timeout (auto-failed)" {
		t.Errorf("expected composed error, got %q", failed.Error)
	}
	if failed.ErrorMessage != "Task timeout (auto-failed)" {
		t.Errorf("expected raw message preserved, got %q", failed.ErrorMessage)
	}
	if failed.FailedAt == nil || failed.FinishedAt == nil {
		t.Error("expected failure timestamps to be set")
	}

	// A queued task can be failed directly, without a type
	queued := createTestTask(t, repo, queue.ID, "run-bash")
	failed, err = repo.MarkToFailed(ctx, queued.ID, "cancelled before start", "")
	if err != nil {
		t.Fatalf("failed to fail queued task: %v", err)
	}
	if failed.Error != "cancelled before start" {
		t.Errorf("expected untyped error stored verbatim, got %q", failed.Error)
	}

	// Failing a terminal task is a conflict
	_, err = repo.MarkToFailed(ctx, running.ID, "again", "")
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict failing a failed task, got %v", err)
	}
}

func TestRepository_CloneForRequeue(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "requeue")
	queue := createTestQueue(t, repo, session.ID, "retry")
	task := createTestTask(t, repo, queue.ID, "run-bash")

	// Requeue of a non-terminal task is a conflict
	if _, err := repo.CloneForRequeue(ctx, task.ID); !apperr.IsConflict(err) {
		t.Fatalf("expected conflict requeueing a queued task, got %v", err)
	}

	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := repo.MarkToFailed(ctx, task.ID, "flaky network", "SCRIPT_ERROR"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	clone, err := repo.CloneForRequeue(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to requeue task: %v", err)
	}
	if clone.ID == task.ID {
		t.Error("expected clone to get a fresh ID")
	}
	if clone.Status != v1.TaskStatusQueued {
		t.Errorf("expected clone queued, got %s", clone.Status)
	}
	if clone.Attempts != 0 {
		t.Errorf("expected clone attempts 0, got %d", clone.Attempts)
	}
	if clone.ToolName != task.ToolName || clone.TaskClass != task.TaskClass || clone.Payload != task.Payload {
		t.Error("expected clone to copy the work definition")
	}
	if clone.Timeout != task.Timeout {
		t.Errorf("expected clone timeout %d, got %d", task.Timeout, clone.Timeout)
	}
	if clone.Error != "" || clone.Result != "" {
		t.Error("expected clone outcome fields to be empty")
	}
	if !strings.HasPrefix(clone.FriendlyID, "retry-") {
		t.Errorf("expected clone friendly ID from queue name, got %s", clone.FriendlyID)
	}
	if clone.FriendlyID == task.FriendlyID {
		t.Error("expected clone friendly ID to differ from original")
	}

	// Original preserved unchanged
	original, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to get original: %v", err)
	}
	if original.Status != v1.TaskStatusFailed {
		t.Errorf("expected original still failed, got %s", original.Status)
	}
	if original.Error != "SCRIPT_ERROR: flaky network" {
		t.Errorf("expected original error preserved, got %q", original.Error)
	}

	// The clone is claimable like any new task
	claimed, err := repo.ClaimQueuedInQueue(ctx, queue.ID)
	if err != nil {
		t.Fatalf("claim of clone failed: %v", err)
	}
	if claimed == nil || claimed.ID != clone.ID {
		t.Error("expected the clone to be claimable")
	}
}

func TestRepository_CloneForRequeueInactiveQueue(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "requeue-ended")
	queue := createTestQueue(t, repo, session.ID, "closing")
	task := createTestTask(t, repo, queue.ID, "run-bash")

	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := repo.MarkRunningToSucceeded(ctx, task.ID, "done", ""); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := repo.SetQueueStatus(ctx, queue.ID, []v1.QueueStatus{v1.QueueStatusActive}, v1.QueueStatusEnded); err != nil {
		t.Fatalf("end queue failed: %v", err)
	}

	_, err := repo.CloneForRequeue(ctx, task.ID)
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict requeueing into ended queue, got %v", err)
	}
}

func TestRepository_ListTasks(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "listing")
	queueA := createTestQueue(t, repo, session.ID, "list-a")
	queueB := createTestQueue(t, repo, session.ID, "list-b")

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, createTestTask(t, repo, queueA.ID, "run-bash").ID)
	}
	createTestTask(t, repo, queueB.ID, "run-bash")

	// Oldest first, claim order
	tasks, total, err := repo.ListTasks(ctx, repository.ListTasksOptions{QueueID: queueA.ID})
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if task.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], task.ID)
		}
	}

	// Pagination keeps the full count
	page, total, err := repo.ListTasks(ctx, repository.ListTasksOptions{QueueID: queueA.ID, Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5 on page, got %d", total)
	}
	if len(page) != 1 {
		t.Errorf("expected 1 task on last page, got %d", len(page))
	}

	// Status filter
	if _, err := repo.ClaimQueuedInQueue(ctx, queueA.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	running, total, err := repo.ListTasks(ctx, repository.ListTasksOptions{Status: v1.TaskStatusRunning})
	if err != nil {
		t.Fatalf("failed to list running: %v", err)
	}
	if total != 1 || len(running) != 1 {
		t.Errorf("expected 1 running task, got total=%d len=%d", total, len(running))
	}
}

func TestRepository_ListRunningAndStaleWarned(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "watcher")
	queue := createTestQueue(t, repo, session.ID, "watched")
	task := createTestTask(t, repo, queue.ID, "run-bash")
	createTestTask(t, repo, queue.ID, "run-bash")

	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	running, err := repo.ListRunning(ctx)
	if err != nil {
		t.Fatalf("failed to list running: %v", err)
	}
	if len(running) != 1 {
		t.Fatalf("expected 1 running task, got %d", len(running))
	}
	if running[0].ID != task.ID {
		t.Errorf("expected %s running, got %s", task.ID, running[0].ID)
	}
	if running[0].StaleWarnedAt != nil {
		t.Error("expected no stale warning yet")
	}

	warnedAt := time.Now().UTC()
	if err := repo.MarkStaleWarned(ctx, task.ID, warnedAt); err != nil {
		t.Fatalf("failed to mark stale: %v", err)
	}
	warned, _ := repo.GetTask(ctx, task.ID)
	if warned.StaleWarnedAt == nil {
		t.Fatal("expected stale warning timestamp")
	}

	// A second warning does not overwrite the first
	first := *warned.StaleWarnedAt
	if err := repo.MarkStaleWarned(ctx, task.ID, warnedAt.Add(time.Hour)); err != nil {
		t.Fatalf("second mark stale failed: %v", err)
	}
	again, _ := repo.GetTask(ctx, task.ID)
	if again.StaleWarnedAt == nil || !again.StaleWarnedAt.Equal(first) {
		t.Error("expected stale warning to be recorded once")
	}
}

func TestRepository_DeleteTasksOlderThan(t *testing.T) {
	repo, cleanup := createTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	session := createTestSession(t, repo, "purge")
	queue := createTestQueue(t, repo, session.ID, "purged")

	finish := func(id string, succeed bool) {
		t.Helper()
		if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		if succeed {
			if _, err := repo.MarkRunningToSucceeded(ctx, id, "done", ""); err != nil {
				t.Fatalf("complete failed: %v", err)
			}
		} else {
			if _, err := repo.MarkToFailed(ctx, id, "boom", ""); err != nil {
				t.Fatalf("fail failed: %v", err)
			}
		}
	}
	age := func(id string, days int) {
		t.Helper()
		expr := dialect.NowMinusDays(repo.db.DriverName(), "?")
		_, err := repo.db.Exec(repo.db.Rebind(`UPDATE tasks SET finished_at = `+expr+` WHERE id = ?`), days, id)
		if err != nil {
			t.Fatalf("failed to age task: %v", err)
		}
	}

	oldSucceeded := createTestTask(t, repo, queue.ID, "run-bash")
	finish(oldSucceeded.ID, true)
	age(oldSucceeded.ID, 5)

	oldFailed := createTestTask(t, repo, queue.ID, "run-bash")
	finish(oldFailed.ID, false)
	age(oldFailed.ID, 5)

	recent := createTestTask(t, repo, queue.ID, "run-bash")
	finish(recent.ID, true)
	age(recent.ID, 1)

	stillRunning := createTestTask(t, repo, queue.ID, "run-bash")
	if _, err := repo.ClaimQueuedInQueue(ctx, queue.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	purged, err := repo.DeleteTasksOlderThan(ctx, 3)
	if err != nil {
		t.Fatalf("failed to purge: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged tasks, got %d", purged)
	}

	if _, err := repo.GetTask(ctx, oldSucceeded.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected old succeeded task purged, got %v", err)
	}
	if _, err := repo.GetTask(ctx, oldFailed.ID); !apperr.IsNotFound(err) {
		t.Errorf("expected old failed task purged, got %v", err)
	}
	if _, err := repo.GetTask(ctx, recent.ID); err != nil {
		t.Errorf("expected recent task kept, got %v", err)
	}
	if _, err := repo.GetTask(ctx, stillRunning.ID); err != nil {
		t.Errorf("expected running task kept, got %v", err)
	}
}
