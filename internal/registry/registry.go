// Package registry resolves SparkQ's runtime configuration from three
// layers: database config entries written through the API, the sparkq.yaml
// file snapshot, and compiled defaults. Resolution is per (namespace, key)
// entry, highest layer wins, and every resolved entry remembers which layer
// supplied it.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/queue/repository"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// PurgeSettings controls deletion of old terminal tasks.
type PurgeSettings struct {
	Enabled         bool `json:"enabled"`
	OlderThanDays   int  `json:"older_than_days"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// Interval returns the purge cadence as a time.Duration.
func (p PurgeSettings) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// QueueRunnerSettings controls the deadline watcher.
type QueueRunnerSettings struct {
	AutoFailIntervalSeconds int `json:"auto_fail_interval_seconds"`
}

// Interval returns the stale-check cadence as a time.Duration.
func (q QueueRunnerSettings) Interval() time.Duration {
	return time.Duration(q.AutoFailIntervalSeconds) * time.Second
}

// QueueDefaultSettings are applied to queues created without explicit values.
type QueueDefaultSettings struct {
	Instructions string `json:"instructions"`
}

type toolSpec struct {
	TaskClass   string `json:"task_class"`
	Description string `json:"description,omitempty"`
}

type classSpec struct {
	Timeout     int    `json:"timeout"`
	Description string `json:"description,omitempty"`
}

type buildIDDoc struct {
	BuildID string `json:"build_id"`
}

// resolvedEntry is one merged config document plus the layer that won.
type resolvedEntry struct {
	raw    string
	source string
}

// Registry is the layered runtime configuration. Reads come from an
// in-memory resolution cache; mutations write the database layer and
// rebuild the cache before returning.
type Registry struct {
	store repository.Store
	log   *logger.Logger

	mu        sync.RWMutex
	cfg       *config.Config
	fileLayer map[string]map[string]string
	resolved  map[string]map[string]resolvedEntry
}

// New builds a registry over the store and the loaded file snapshot and
// performs the initial resolution.
func New(ctx context.Context, store repository.Store, cfg *config.Config, log *logger.Logger) (*Registry, error) {
	r := &Registry{store: store, log: log}
	r.apply(cfg)
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// apply swaps in a new file snapshot. The resolution cache is rebuilt by the
// next refresh.
func (r *Registry) apply(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.fileLayer = fileEntries(cfg)
}

// fileEntries renders the sections the config file actually provided as
// config documents. Sections the file omits contribute nothing, so the
// compiled defaults stay visible as such.
func fileEntries(cfg *config.Config) map[string]map[string]string {
	entries := make(map[string]map[string]string)
	if cfg == nil {
		return entries
	}
	put := func(ns, key, value string) {
		if entries[ns] == nil {
			entries[ns] = make(map[string]string)
		}
		entries[ns][key] = value
	}

	if cfg.ProvidedSections["purge"] {
		p := builtinPurge()
		p.Enabled = cfg.Purge.Enabled
		if cfg.Purge.OlderThanDays > 0 {
			p.OlderThanDays = cfg.Purge.OlderThanDays
		}
		if cfg.Purge.IntervalSeconds > 0 {
			p.IntervalSeconds = cfg.Purge.IntervalSeconds
		}
		put(NamespacePurge, KeyConfig, mustJSON(p))
	}
	if cfg.ProvidedSections["queue_runner"] {
		q := builtinQueueRunner()
		if cfg.QueueRunner.AutoFailIntervalSeconds > 0 {
			q.AutoFailIntervalSeconds = cfg.QueueRunner.AutoFailIntervalSeconds
		}
		put(NamespaceQueueRunner, KeyConfig, mustJSON(q))
	}
	if len(cfg.TaskClasses) > 0 {
		classes := make(map[string]classSpec, len(cfg.TaskClasses))
		for name, tc := range cfg.TaskClasses {
			classes[name] = classSpec{Timeout: tc.Timeout, Description: tc.Description}
		}
		put(NamespaceTaskClasses, KeyAll, mustJSON(classes))
	}
	if len(cfg.Tools) > 0 {
		tools := make(map[string]toolSpec, len(cfg.Tools))
		for name, tool := range cfg.Tools {
			tools[name] = toolSpec{TaskClass: tool.TaskClass, Description: tool.Description}
		}
		put(NamespaceTools, KeyAll, mustJSON(tools))
	}
	if len(cfg.Features) > 0 {
		put(NamespaceFeatures, KeyFlags, mustJSON(cfg.Features))
	}
	if cfg.ProvidedSections["defaults"] {
		put(NamespaceDefaults, KeyQueue, mustJSON(QueueDefaultSettings{Instructions: cfg.Defaults.Queue.Instructions}))
	}
	return entries
}

// refresh rebuilds the resolution cache from all three layers.
func (r *Registry) refresh(ctx context.Context) error {
	dbEntries, err := r.store.ListConfigEntries(ctx)
	if err != nil {
		return err
	}

	resolved := make(map[string]map[string]resolvedEntry)
	set := func(ns, key, raw, source string) {
		if resolved[ns] == nil {
			resolved[ns] = make(map[string]resolvedEntry)
		}
		resolved[ns][key] = resolvedEntry{raw: raw, source: source}
	}

	for ns, keys := range builtinEntries() {
		for key, raw := range keys {
			set(ns, key, raw, v1.ConfigSourceDefault)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ns, keys := range r.fileLayer {
		for key, raw := range keys {
			set(ns, key, raw, v1.ConfigSourceFile)
		}
	}
	for _, entry := range dbEntries {
		set(entry.Namespace, entry.Key, entry.Value, v1.ConfigSourceDB)
	}
	r.resolved = resolved
	return nil
}

// raw returns the winning document for an entry and the layer it came from.
func (r *Registry) raw(ns, key string) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, ok := r.resolved[ns]
	if !ok {
		return "", "", false
	}
	entry, ok := keys[key]
	if !ok {
		return "", "", false
	}
	return entry.raw, entry.source, true
}

// decode unmarshals the resolved entry into dst, leaving dst untouched when
// the entry is absent or malformed. dst arrives pre-filled with builtins, so
// a partial document keeps default values for the fields it omits.
func (r *Registry) decode(ns, key string, dst interface{}) {
	raw, _, ok := r.raw(ns, key)
	if !ok {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.log.WithError(err).Warn("Ignoring malformed config entry",
			zap.String("namespace", ns), zap.String("key", key))
	}
}

// Server returns the HTTP bind configuration from the file snapshot. The
// server binds once at startup, so this is not part of the layered entries.
func (r *Registry) Server() config.ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Server
}

// Database returns the storage configuration from the file snapshot.
func (r *Registry) Database() config.DatabaseConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Database
}

// DatabasePath returns the sqlite file path.
func (r *Registry) DatabasePath() string {
	return r.Database().Path
}

// Purge returns the resolved purge settings.
func (r *Registry) Purge() PurgeSettings {
	out := builtinPurge()
	r.decode(NamespacePurge, KeyConfig, &out)
	return out
}

// QueueRunner returns the resolved deadline-watcher settings.
func (r *Registry) QueueRunner() QueueRunnerSettings {
	out := builtinQueueRunner()
	r.decode(NamespaceQueueRunner, KeyConfig, &out)
	return out
}

// QueueDefaults returns defaults applied to newly created queues.
func (r *Registry) QueueDefaults() QueueDefaultSettings {
	out := builtinQueueDefaults()
	r.decode(NamespaceDefaults, KeyQueue, &out)
	return out
}

// Features returns the resolved feature flags.
func (r *Registry) Features() map[string]bool {
	raw, _, ok := r.raw(NamespaceFeatures, KeyFlags)
	if ok {
		var flags map[string]bool
		if err := json.Unmarshal([]byte(raw), &flags); err == nil {
			return flags
		}
	}
	return map[string]bool{}
}

// UIBuildID returns the resolved UI build identifier.
func (r *Registry) UIBuildID() string {
	doc := builtinBuildID()
	r.decode(NamespaceUI, KeyBuildID, &doc)
	return doc.BuildID
}

// toolSpecs returns the winning tool catalog document. A catalog document
// replaces lower layers wholesale rather than merging with them.
func (r *Registry) toolSpecs() map[string]toolSpec {
	raw, _, ok := r.raw(NamespaceTools, KeyAll)
	if ok {
		var specs map[string]toolSpec
		if err := json.Unmarshal([]byte(raw), &specs); err == nil {
			return specs
		}
		r.log.Warn("Ignoring malformed tools catalog")
	}
	return builtinTools()
}

func (r *Registry) classSpecs() map[string]classSpec {
	raw, _, ok := r.raw(NamespaceTaskClasses, KeyAll)
	if ok {
		var specs map[string]classSpec
		if err := json.Unmarshal([]byte(raw), &specs); err == nil {
			return specs
		}
		r.log.Warn("Ignoring malformed task class catalog")
	}
	return builtinTaskClasses()
}

// Tools returns the resolved tool catalog sorted by name.
func (r *Registry) Tools() []v1.Tool {
	specs := r.toolSpecs()
	tools := make([]v1.Tool, 0, len(specs))
	for name, spec := range specs {
		tools = append(tools, v1.Tool{Name: name, TaskClass: spec.TaskClass, Description: spec.Description})
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// TaskClasses returns the resolved task class catalog sorted by name.
func (r *Registry) TaskClasses() []v1.TaskClass {
	specs := r.classSpecs()
	classes := make([]v1.TaskClass, 0, len(specs))
	for name, spec := range specs {
		classes = append(classes, v1.TaskClass{Name: name, Timeout: spec.Timeout, Description: spec.Description})
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes
}

// ToolByName looks up one tool in the resolved catalog.
func (r *Registry) ToolByName(name string) (v1.Tool, bool) {
	spec, ok := r.toolSpecs()[name]
	if !ok {
		return v1.Tool{}, false
	}
	return v1.Tool{Name: name, TaskClass: spec.TaskClass, Description: spec.Description}, true
}

// TaskClassByName looks up one task class in the resolved catalog.
func (r *Registry) TaskClassByName(name string) (v1.TaskClass, bool) {
	spec, ok := r.classSpecs()[name]
	if !ok {
		return v1.TaskClass{}, false
	}
	return v1.TaskClass{Name: name, Timeout: spec.Timeout, Description: spec.Description}, true
}

// Resolved returns the full merged configuration with per-entry layer
// annotations, for GET /config.
func (r *Registry) Resolved() v1.ResolvedConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(v1.ResolvedConfig, len(r.resolved))
	for ns, keys := range r.resolved {
		out[ns] = make(map[string]v1.ConfigValue, len(keys))
		for key, entry := range keys {
			var value interface{}
			if err := json.Unmarshal([]byte(entry.raw), &value); err != nil {
				value = entry.raw
			}
			out[ns][key] = v1.ConfigValue{Value: value, Source: entry.source}
		}
	}
	return out
}
