// Package watcher runs SparkQ's background maintenance: deadline checks on
// running tasks and the purge of old terminal tasks.
package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/events/bus"
	"github.com/sparkq/sparkq/internal/queue/models"
	"github.com/sparkq/sparkq/internal/queue/repository"
	"github.com/sparkq/sparkq/internal/registry"
	"github.com/sparkq/sparkq/internal/telemetry"
)

const eventSource = "sparkq-watcher"

// autoFailType prefixes the stored error, so a task the watcher gives up on
// reads "TIMEOUT: Task timeout (auto-failed)".
const (
	autoFailMessage = "Task timeout (auto-failed)"
	autoFailType    = "TIMEOUT"
)

// Watcher owns two ticker loops: the stale check (warn at 1x timeout,
// auto-fail at 2x) and the purge of terminal tasks past the retention
// horizon. Settings come from the registry and are re-read after every
// pass, so config changes apply without a restart.
type Watcher struct {
	store    repository.Store
	registry *registry.Registry
	eventBus bus.EventBus
	logger   *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a watcher. The event bus may be nil; passes then run silently.
func New(store repository.Store, reg *registry.Registry, eventBus bus.EventBus, log *logger.Logger) *Watcher {
	return &Watcher{
		store:    store,
		registry: reg,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "watcher")),
	}
}

// Start launches both loops. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.loop(ctx, "stale", w.staleInterval, func(ctx context.Context) { w.RunStalePass(ctx) })
	go w.loop(ctx, "purge", w.purgeInterval, func(ctx context.Context) { w.RunPurgePass(ctx) })
	w.running = true

	w.logger.Info("Watcher started",
		zap.Duration("stale_interval", w.staleInterval()),
		zap.Duration("purge_interval", w.purgeInterval()))
}

// Stop cancels the loops and waits for them to drain. The loops only block
// on ticker selects, so Stop returns promptly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.running = false
	w.logger.Info("Watcher stopped")
}

// IsRunning reports whether the loops are active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, name string, interval func() time.Duration, pass func(context.Context)) {
	defer w.wg.Done()

	current := interval()
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
			if next := interval(); next != current {
				w.logger.Info("Interval changed",
					zap.String("loop", name),
					zap.Duration("interval", next))
				current = next
				ticker.Reset(current)
			}
		}
	}
}

// staleInterval and purgeInterval guard against non-positive values because
// time.NewTicker panics on them. The registry validates writes, but the
// file layer is not validated on load.
func (w *Watcher) staleInterval() time.Duration {
	if d := w.registry.QueueRunner().Interval(); d > 0 {
		return d
	}
	return 30 * time.Second
}

func (w *Watcher) purgeInterval() time.Duration {
	if d := w.registry.Purge().Interval(); d > 0 {
		return d
	}
	return time.Hour
}

// RunStalePass examines every running task once. A row past double its
// timeout is auto-failed; a row past its timeout is warn-marked, once.
// Returns the number of warned and auto-failed tasks. Row errors are
// logged and the pass moves on; the next pass retries.
func (w *Watcher) RunStalePass(ctx context.Context) (warned, failed int) {
	ctx, span := telemetry.Tracer("sparkq-watcher").Start(ctx, "watcher.StalePass")
	defer span.End()

	tasks, err := w.store.ListRunning(ctx)
	if err != nil {
		w.logger.WithError(err).Error("Stale pass cannot list running tasks")
		return 0, 0
	}

	now := time.Now().UTC()
	for _, task := range tasks {
		if task.StartedAt == nil {
			w.logger.Warn("Running task has no started_at, skipping",
				zap.String("task_id", task.ID))
			continue
		}

		timeout := time.Duration(task.Timeout) * time.Second
		if task.Timeout <= 0 {
			timeout = registry.WatcherRowTimeoutSeconds * time.Second
		}
		elapsed := now.Sub(*task.StartedAt)

		switch {
		case elapsed >= 2*timeout:
			if w.autoFail(ctx, task, elapsed) {
				failed++
			}
		case elapsed >= timeout && task.StaleWarnedAt == nil:
			if w.warnStale(ctx, task, now, elapsed) {
				warned++
			}
		}
	}
	return warned, failed
}

func (w *Watcher) autoFail(ctx context.Context, task *models.Task, elapsed time.Duration) bool {
	failed, err := w.store.MarkToFailed(ctx, task.ID, autoFailMessage, autoFailType)
	if err != nil {
		// A worker finishing the task between the list and this update is
		// an ordinary race, not a fault.
		w.logger.WithError(err).Warn("Auto-fail skipped", zap.String("task_id", task.ID))
		return false
	}

	w.logger.Info("Task auto-failed after missing its deadline twice over",
		zap.String("task_id", failed.ID),
		zap.String("friendly_id", failed.FriendlyID),
		zap.Int("timeout", task.Timeout),
		zap.Duration("elapsed", elapsed))
	w.publish(ctx, events.TaskAutoFailed, map[string]interface{}{
		"task_id":     failed.ID,
		"friendly_id": failed.FriendlyID,
		"queue_id":    failed.QueueID,
		"tool_name":   failed.ToolName,
		"status":      string(failed.Status),
		"attempts":    failed.Attempts,
		"error":       failed.Error,
	})
	return true
}

func (w *Watcher) warnStale(ctx context.Context, task *models.Task, now time.Time, elapsed time.Duration) bool {
	if err := w.store.MarkStaleWarned(ctx, task.ID, now); err != nil {
		w.logger.WithError(err).Warn("Stale warn skipped", zap.String("task_id", task.ID))
		return false
	}

	w.logger.Warn("Task running past its timeout",
		zap.String("task_id", task.ID),
		zap.String("friendly_id", task.FriendlyID),
		zap.Int("timeout", task.Timeout),
		zap.Duration("elapsed", elapsed))
	w.publish(ctx, events.TaskStaleWarned, map[string]interface{}{
		"task_id":         task.ID,
		"friendly_id":     task.FriendlyID,
		"queue_id":        task.QueueID,
		"tool_name":       task.ToolName,
		"timeout":         task.Timeout,
		"elapsed_seconds": int(elapsed.Seconds()),
	})
	return true
}

// RunPurgePass deletes terminal tasks past the retention horizon. Returns
// the number of rows removed.
func (w *Watcher) RunPurgePass(ctx context.Context) int {
	settings := w.registry.Purge()
	if !settings.Enabled {
		return 0
	}
	ctx, span := telemetry.Tracer("sparkq-watcher").Start(ctx, "watcher.PurgePass")
	defer span.End()

	deleted, err := w.store.DeleteTasksOlderThan(ctx, settings.OlderThanDays)
	if err != nil {
		w.logger.WithError(err).Error("Purge pass failed")
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Purged old tasks",
			zap.Int("deleted", deleted),
			zap.Int("older_than_days", settings.OlderThanDays))
	}
	return deleted
}

func (w *Watcher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if w.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, eventSource, data)
	if err := w.eventBus.Publish(ctx, eventType, event); err != nil {
		w.logger.WithError(err).Warn("Failed to publish event", zap.String("event_type", eventType))
	}
}
