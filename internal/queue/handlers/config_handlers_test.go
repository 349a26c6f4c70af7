package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/events/bus"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func TestGetConfigResolvesBuiltins(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved := decode[v1.ResolvedConfig](t, w)

	purge, ok := resolved["purge"]["config"]
	require.True(t, ok)
	assert.Equal(t, v1.ConfigSourceDefault, purge.Source)

	doc, ok := purge.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), doc["older_than_days"])

	for _, ns := range []string{"queue_runner", "tools", "task_classes", "features", "defaults", "ui"} {
		assert.Contains(t, resolved, ns)
	}
}

func TestPutConfigOverridesAndDeleteReverts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/v1/config/purge/config", v1.PutConfigRequest{
		Value: map[string]interface{}{"enabled": false},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[v1.ResolvedConfig](t, w)
	assert.Equal(t, v1.ConfigSourceDB, resolved["purge"]["config"].Source)

	// A partial document merges over the builtins in the typed view.
	settings := f.reg.Purge()
	assert.False(t, settings.Enabled)
	assert.Equal(t, 3, settings.OlderThanDays)

	w = f.do(t, http.MethodDelete, "/api/v1/config/purge/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resolved = decode[v1.ResolvedConfig](t, w)
	assert.Equal(t, v1.ConfigSourceDefault, resolved["purge"]["config"].Source)
	assert.True(t, f.reg.Purge().Enabled)
}

func TestPutConfigValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/v1/config/purge/config", v1.PutConfigRequest{
		Value: map[string]interface{}{"older_than_days": 0},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errKind(t, w))

	// Missing value field fails binding.
	w = f.do(t, http.MethodPut, "/api/v1/config/purge/config", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errKind(t, w))

	// Shrinking the class catalog under a tool that references it is a
	// conflict, not a validation failure.
	w = f.do(t, http.MethodPut, "/api/v1/config/task_classes/all", v1.PutConfigRequest{
		Value: map[string]interface{}{"ONLY": map[string]interface{}{"timeout": 60}},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errKind(t, w))
}

func TestValidateConfigEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/config/validate", v1.ValidateConfigRequest{
		Namespace: "purge",
		Key:       "config",
		Value:     map[string]interface{}{"enabled": true},
	})
	require.Equal(t, http.StatusOK, w.Code)
	verdict := decode[v1.ValidateConfigResponse](t, w)
	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Errors)

	// A rejected value still answers 200; the verdict carries the problems.
	w = f.do(t, http.MethodPost, "/api/v1/config/validate", v1.ValidateConfigRequest{
		Namespace: "purge",
		Key:       "config",
		Value:     map[string]interface{}{"older_than_days": 0, "interval_seconds": 0},
	})
	require.Equal(t, http.StatusOK, w.Code)
	verdict = decode[v1.ValidateConfigResponse](t, w)
	assert.False(t, verdict.Valid)
	assert.Len(t, verdict.Errors, 2)

	// The request envelope itself is still subject to binding.
	w = f.do(t, http.MethodPost, "/api/v1/config/validate", map[string]interface{}{
		"key":   "config",
		"value": map[string]interface{}{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", errKind(t, w))
}

func TestReloadConfigIsStable(t *testing.T) {
	f := newFixture(t)

	// A database override must survive a file reload.
	w := f.do(t, http.MethodPut, "/api/v1/config/features/flags", v1.PutConfigRequest{
		Value: map[string]bool{"experimental": true},
	})
	require.Equal(t, http.StatusOK, w.Code)
	before := decode[v1.ResolvedConfig](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/config/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decode[v1.ResolvedConfig](t, w)

	assert.Equal(t, before, after)
	assert.Equal(t, v1.ConfigSourceDB, after["features"]["flags"].Source)
}

func TestConfigMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var seen []*bus.Event
	_, err := f.Bus.Subscribe(events.ConfigWildcard, func(ctx context.Context, event *bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event)
		return nil
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodPut, "/api/v1/config/purge/config", v1.PutConfigRequest{
		Value: map[string]interface{}{"enabled": false},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/config/purge/config", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/config/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, events.ConfigUpdated, seen[0].Type)
	assert.Equal(t, "purge", seen[0].Data["namespace"])
	assert.Equal(t, "config", seen[0].Data["key"])
	assert.Equal(t, events.ConfigDeleted, seen[1].Type)
	assert.Equal(t, events.ConfigReloaded, seen[2].Type)

	// A rejected write publishes nothing.
	w = f.do(t, http.MethodPut, "/api/v1/config/purge/config", v1.PutConfigRequest{
		Value: map[string]interface{}{"older_than_days": 0},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, seen, 3)
}
