package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/db"
	"github.com/sparkq/sparkq/internal/events/bus"
	gateway "github.com/sparkq/sparkq/internal/gateway/websocket"
	"github.com/sparkq/sparkq/internal/queue/handlers"
	"github.com/sparkq/sparkq/internal/queue/repository/sqlite"
	"github.com/sparkq/sparkq/internal/queue/service"
	"github.com/sparkq/sparkq/internal/registry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	pool, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "client_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	repo, err := sqlite.NewWithDB(pool.Writer(), pool.Reader())
	require.NoError(t, err)

	ctx := context.Background()
	reg, err := registry.New(ctx, repo, &config.Config{}, log)
	require.NoError(t, err)
	require.NoError(t, reg.Seed(ctx))

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	svc := service.New(repo, reg, eventBus, log)

	gw := gateway.NewGateway(svc, eventBus, log)
	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go gw.Run(runCtx)

	router := gin.New()
	handlers.RegisterRoutes(router, svc, reg, eventBus, "test", log)
	gw.SetupRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return New(server.URL, log)
}

func TestClientHealthStatsPrompts(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)

	stats, err := c.ProjectStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Sessions)

	prompts, err := c.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, prompts.Total)

	prompt, err := c.GetPrompt(ctx, prompts.Prompts[0].Name)
	require.NoError(t, err)
	assert.NotEmpty(t, prompt.Content)

	_, err = c.GetPrompt(ctx, "no-such-prompt")
	assert.True(t, apperr.IsNotFound(err))
}

func TestClientSessionAndQueueFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	session, err := c.CreateSession(ctx, v1.CreateSessionRequest{Name: "release 1.4", Description: "hardening"})
	require.NoError(t, err)
	assert.Equal(t, v1.SessionStatusActive, session.Status)

	byName, err := c.GetSessionByName(ctx, "release 1.4")
	require.NoError(t, err)
	assert.Equal(t, session.ID, byName.ID)

	updated, err := c.UpdateSession(ctx, session.ID, v1.UpdateSessionRequest{Description: ptr("hardening sprint")})
	require.NoError(t, err)
	assert.Equal(t, "hardening sprint", updated.Description)

	queue, err := c.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "default"})
	require.NoError(t, err)

	got, err := c.GetQueue(ctx, queue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Stats)
	assert.Zero(t, got.Stats.Total)

	list, err := c.ListQueues(ctx, ListQueuesOptions{SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	ended, err := c.EndSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.SessionStatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)

	require.NoError(t, c.DeleteSession(ctx, session.ID))
	_, err = c.GetSession(ctx, session.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClientTaskLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	session, err := c.CreateSession(ctx, v1.CreateSessionRequest{Name: "demo"})
	require.NoError(t, err)
	queue, err := c.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "default"})
	require.NoError(t, err)

	// A drained queue claims to nothing, not an error.
	task, err := c.ClaimTask(ctx, queue.ID, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, task)

	created, err := c.EnqueueTask(ctx, v1.CreateTaskRequest{
		QueueID:  queue.ID,
		ToolName: "run-bash",
		Payload:  `{"cmd":"true"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusQueued, created.Status)

	claimed, err := c.ClaimTask(ctx, queue.ID, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, created.ID, claimed.ID)
	assert.Equal(t, v1.TaskStatusRunning, claimed.Status)

	failed, err := c.FailTask(ctx, claimed.ID, v1.FailTaskRequest{ErrorMessage: "flaky network"})
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusFailed, failed.Status)

	clone, err := c.RequeueTask(ctx, claimed.ID)
	require.NoError(t, err)
	assert.NotEqual(t, claimed.ID, clone.ID)
	assert.Equal(t, v1.TaskStatusQueued, clone.Status)

	reclaimed, err := c.ClaimTask(ctx, queue.ID, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	done, err := c.CompleteTask(ctx, reclaimed.ID, v1.CompleteTaskRequest{ResultSummary: "second try passed"})
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusSucceeded, done.Status)

	list, err := c.ListTasks(ctx, ListTasksOptions{QueueID: queue.ID, Status: v1.TaskStatusSucceeded})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	quick, err := c.QuickAdd(ctx, v1.QuickAddRequest{
		QueueID:  queue.ID,
		Mode:     v1.QuickAddModeLLM,
		Prompt:   "triage the failures",
		ToolName: "ask-llm",
	})
	require.NoError(t, err)
	assert.Equal(t, "ask-llm", quick.ToolName)

	patched, err := c.UpdateTask(ctx, quick.ID, v1.UpdateTaskRequest{Timeout: ptr(600)})
	require.NoError(t, err)
	assert.Equal(t, 600, patched.Timeout)

	require.NoError(t, c.DeleteTask(ctx, quick.ID))
	_, err = c.GetTask(ctx, quick.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClientErrorKinds(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateSession(ctx, v1.CreateSessionRequest{Name: "   "})
	assert.True(t, apperr.IsValidation(err))

	_, err = c.GetSession(ctx, "ses_0000missing")
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "ses_0000missing")

	session, err := c.CreateSession(ctx, v1.CreateSessionRequest{Name: "demo"})
	require.NoError(t, err)
	_, err = c.EndSession(ctx, session.ID)
	require.NoError(t, err)
	_, err = c.EndSession(ctx, session.ID)
	assert.True(t, apperr.IsConflict(err))
}

func TestClientConfigRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resolved, err := c.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1.ConfigSourceDefault, resolved["purge"]["config"].Source)

	resolved, err = c.PutConfig(ctx, "purge", "config", map[string]interface{}{"enabled": false})
	require.NoError(t, err)
	assert.Equal(t, v1.ConfigSourceDB, resolved["purge"]["config"].Source)

	verdict, err := c.ValidateConfig(ctx, "purge", "config", map[string]interface{}{"older_than_days": 0})
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.NotEmpty(t, verdict.Errors)

	_, err = c.PutConfig(ctx, "purge", "config", map[string]interface{}{"older_than_days": 0})
	assert.True(t, apperr.IsValidation(err))

	resolved, err = c.DeleteConfig(ctx, "purge", "config")
	require.NoError(t, err)
	assert.Equal(t, v1.ConfigSourceDefault, resolved["purge"]["config"].Source)

	reloaded, err := c.ReloadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, resolved, reloaded)
}

func TestClientFeedStream(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := c.CreateSession(ctx, v1.CreateSessionRequest{Name: "demo"})
	require.NoError(t, err)
	queue, err := c.CreateQueue(ctx, session.ID, v1.CreateQueueRequest{Name: "default"})
	require.NoError(t, err)

	events := make(chan string, 16)
	stream, err := c.StreamFeed(ctx, []string{"task.>"}, FeedCallbacks{
		OnEvent: func(action string, payload json.RawMessage) {
			events <- action
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	// The subscribe request is applied by the server's read pump; no ack
	// is strictly ordered against our next write, so give it a beat.
	time.Sleep(100 * time.Millisecond)

	_, err = c.EnqueueTask(ctx, v1.CreateTaskRequest{
		QueueID:  queue.ID,
		ToolName: "run-bash",
		Payload:  `{"cmd":"true"}`,
	})
	require.NoError(t, err)

	select {
	case action := <-events:
		assert.Equal(t, "task.enqueued", action)
	case <-time.After(5 * time.Second):
		t.Fatal("no task.enqueued notification within 5s")
	}

	// Session events do not match the subscription.
	_, err = c.CreateSession(ctx, v1.CreateSessionRequest{Name: "quiet"})
	require.NoError(t, err)
	select {
	case action := <-events:
		t.Fatalf("unexpected notification %s", action)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on context cancel")
	}
}

func TestDecodeErrorFallbacks(t *testing.T) {
	err := decodeError(404, []byte(`{"error":{"kind":"not_found","message":"task not found: tsk_1"}}`))
	assert.True(t, apperr.IsNotFound(err))
	assert.Contains(t, err.Error(), "tsk_1")

	// A body that is not the error envelope still maps by status.
	err = decodeError(409, []byte("conflict elsewhere"))
	assert.True(t, apperr.IsConflict(err))

	err = decodeError(502, []byte("<html>bad gateway</html>"))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	// Unknown kinds from newer servers degrade to internal.
	err = decodeError(400, []byte(`{"error":{"kind":"brand_new","message":"hm"}}`))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func ptr[T any](v T) *T { return &v }
