package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/queue/models"
)

// Put validates value, writes it to the database layer, and rebuilds the
// resolution cache. Writing a catalog entry rewrites the matching projection
// table in the same transaction.
func (r *Registry) Put(ctx context.Context, ns, key string, value interface{}) error {
	if ns == "" || key == "" {
		return apperr.Validation("namespace and key are required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Validationf("value is not representable as JSON: %v", err)
	}
	if err := r.validateDocument(ns, key, raw); err != nil {
		return err
	}

	tools, classes := r.projectionRows(ns, key, raw)
	entry := &models.ConfigEntry{Namespace: ns, Key: key, Value: string(raw)}
	if err := r.store.PutConfigEntry(ctx, entry, tools, classes); err != nil {
		return err
	}
	r.log.Info("Config entry updated", zap.String("namespace", ns), zap.String("key", key))
	return r.refresh(ctx)
}

// Delete removes a database-layer entry so the file or builtin document shows
// through again. Deleting a catalog entry rewrites its projection table from
// the layer that becomes visible.
func (r *Registry) Delete(ctx context.Context, ns, key string) error {
	if isCatalog(ns, key) {
		reverted := r.layerBelowDB(ns, key)
		if err := r.validateDocument(ns, key, []byte(reverted)); err != nil {
			return err
		}
		tools, classes := r.projectionRows(ns, key, []byte(reverted))
		if err := r.store.DeleteConfigEntry(ctx, ns, key, tools, classes); err != nil {
			return err
		}
	} else if err := r.store.DeleteConfigEntry(ctx, ns, key, nil, nil); err != nil {
		return err
	}
	r.log.Info("Config entry deleted", zap.String("namespace", ns), zap.String("key", key))
	return r.refresh(ctx)
}

// Validate checks a proposed value without writing it. Structural problems
// come back as validation errors; removing a task class that a tool still
// references is a conflict.
func (r *Registry) Validate(ns, key string, value interface{}) error {
	if ns == "" || key == "" {
		return apperr.Validation("namespace and key are required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return apperr.Validationf("value is not representable as JSON: %v", err)
	}
	return r.validateDocument(ns, key, raw)
}

// Reload re-reads the config file the registry was started with and rebuilds
// the resolution cache. Server and database settings are bind-time only and
// keep their startup values.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.RLock()
	path := r.cfg.FileUsed
	r.mu.RUnlock()

	cfg, err := config.LoadWithPath(path)
	if err != nil {
		return apperr.Validationf("reload: %v", err)
	}
	// The listener and the database handle were bound at startup. Pin those
	// sections to the running values and tell the operator the file moved on.
	if srv := r.Server(); cfg.Server != srv {
		r.log.Warn("Server settings changed on disk, restart to apply",
			zap.String("running", srv.Addr()), zap.String("file", cfg.Server.Addr()))
		cfg.Server = srv
	}
	if db := r.Database(); cfg.Database != db {
		r.log.Warn("Database settings changed on disk, restart to apply",
			zap.String("running_path", r.DatabasePath()))
		cfg.Database = db
	}
	r.apply(cfg)
	if err := r.refresh(ctx); err != nil {
		return err
	}
	r.log.Info("Configuration reloaded", zap.String("file", cfg.FileUsed))
	return nil
}

// Seed populates an empty database with the startup configuration: the
// project row gets created, the config table receives the file layer, and
// the projection tables receive the resolved catalogs. Tables that already
// have rows are left untouched, so seeding never overwrites operator changes.
func (r *Registry) Seed(ctx context.Context) error {
	name, root := r.projectIdentity()
	if _, err := r.store.EnsureProject(ctx, name, root); err != nil {
		return err
	}

	existing, err := r.store.ListConfigEntries(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		r.mu.RLock()
		fileLayer := r.fileLayer
		r.mu.RUnlock()
		for _, ns := range sortedKeys(fileLayer) {
			for _, key := range sortedKeys(fileLayer[ns]) {
				entry := &models.ConfigEntry{Namespace: ns, Key: key, Value: fileLayer[ns][key]}
				if err := r.store.PutConfigEntry(ctx, entry, nil, nil); err != nil {
					return err
				}
			}
		}
		if err := r.refresh(ctx); err != nil {
			return err
		}
	}

	tools := toolRows(r.toolSpecs())
	classes := classRows(r.classSpecs())
	if err := r.store.SeedCatalogs(ctx, tools, classes, builtinPrompts()); err != nil {
		return err
	}
	r.log.Debug("Catalog seeding pass complete")
	return nil
}

// projectIdentity derives the singleton project's name and workspace path
// from the file snapshot. The workspace is the config file's directory, or
// the working directory when running on defaults.
func (r *Registry) projectIdentity() (string, string) {
	r.mu.RLock()
	name := r.cfg.Project.Name
	file := r.cfg.FileUsed
	r.mu.RUnlock()

	root := ""
	if file != "" {
		root = filepath.Dir(file)
	} else if wd, err := os.Getwd(); err == nil {
		root = wd
	}
	if name == "" {
		name = filepath.Base(root)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "sparkq"
	}
	return name, root
}

// isCatalog reports whether an entry drives a projection table.
func isCatalog(ns, key string) bool {
	return (ns == NamespaceTools && key == KeyAll) || (ns == NamespaceTaskClasses && key == KeyAll)
}

// layerBelowDB returns the document an entry resolves to once the database
// layer is out of the picture.
func (r *Registry) layerBelowDB(ns, key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if keys, ok := r.fileLayer[ns]; ok {
		if raw, ok := keys[key]; ok {
			return raw
		}
	}
	if keys, ok := builtinEntries()[ns]; ok {
		if raw, ok := keys[key]; ok {
			return raw
		}
	}
	return ""
}

// projectionRows renders the rows a catalog document projects to. Non-catalog
// entries project nothing.
func (r *Registry) projectionRows(ns, key string, raw []byte) ([]*models.Tool, []*models.TaskClass) {
	switch {
	case ns == NamespaceTools && key == KeyAll:
		specs := map[string]toolSpec{}
		_ = json.Unmarshal(raw, &specs)
		return toolRows(specs), nil
	case ns == NamespaceTaskClasses && key == KeyAll:
		specs := map[string]classSpec{}
		_ = json.Unmarshal(raw, &specs)
		return nil, classRows(specs)
	}
	return nil, nil
}

func toolRows(specs map[string]toolSpec) []*models.Tool {
	rows := make([]*models.Tool, 0, len(specs))
	for name, spec := range specs {
		rows = append(rows, &models.Tool{Name: name, TaskClass: spec.TaskClass, Description: spec.Description})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

func classRows(specs map[string]classSpec) []*models.TaskClass {
	rows := make([]*models.TaskClass, 0, len(specs))
	for name, spec := range specs {
		rows = append(rows, &models.TaskClass{Name: name, Timeout: spec.Timeout, Description: spec.Description})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

// validateDocument applies the shape rules for the entries the registry
// understands. Unknown namespaces are stored verbatim.
func (r *Registry) validateDocument(ns, key string, raw []byte) error {
	switch {
	case ns == NamespacePurge && key == KeyConfig:
		// Partial documents merge over builtins at read time, so validate
		// the merged result rather than the bare document.
		p := builtinPurge()
		if err := json.Unmarshal(raw, &p); err != nil {
			return apperr.Validationf("purge config must be an object: %v", err)
		}
		var problems []string
		if p.OlderThanDays < 1 {
			problems = append(problems, "older_than_days must be at least 1")
		}
		if p.IntervalSeconds < 1 {
			problems = append(problems, "interval_seconds must be at least 1")
		}
		return validationList(problems)

	case ns == NamespaceQueueRunner && key == KeyConfig:
		q := builtinQueueRunner()
		if err := json.Unmarshal(raw, &q); err != nil {
			return apperr.Validationf("queue_runner config must be an object: %v", err)
		}
		if q.AutoFailIntervalSeconds < 1 {
			return apperr.Validation("auto_fail_interval_seconds must be at least 1")
		}
		return nil

	case ns == NamespaceTools && key == KeyAll:
		var specs map[string]toolSpec
		if err := json.Unmarshal(raw, &specs); err != nil {
			return apperr.Validationf("tools catalog must map tool names to definitions: %v", err)
		}
		classes := r.classSpecs()
		var problems []string
		for _, name := range sortedKeys(specs) {
			spec := specs[name]
			if strings.TrimSpace(name) == "" {
				problems = append(problems, "tool names must not be empty")
				continue
			}
			if spec.TaskClass == "" {
				problems = append(problems, fmt.Sprintf("tool %q needs a task_class", name))
			} else if _, ok := classes[spec.TaskClass]; !ok {
				problems = append(problems, fmt.Sprintf("tool %q references unknown task class %q", name, spec.TaskClass))
			}
		}
		return validationList(problems)

	case ns == NamespaceTaskClasses && key == KeyAll:
		var specs map[string]classSpec
		if err := json.Unmarshal(raw, &specs); err != nil {
			return apperr.Validationf("task class catalog must map class names to definitions: %v", err)
		}
		var problems []string
		for _, name := range sortedKeys(specs) {
			if strings.TrimSpace(name) == "" {
				problems = append(problems, "task class names must not be empty")
				continue
			}
			if specs[name].Timeout < 1 {
				problems = append(problems, fmt.Sprintf("task class %q needs a positive timeout", name))
			}
		}
		if err := validationList(problems); err != nil {
			return err
		}
		// A class can only disappear once nothing references it.
		tools := r.toolSpecs()
		for _, name := range sortedKeys(tools) {
			if _, ok := specs[tools[name].TaskClass]; !ok {
				return apperr.Conflictf("task class %q is still referenced by tool %q", tools[name].TaskClass, name)
			}
		}
		return nil

	case ns == NamespaceFeatures && key == KeyFlags:
		var flags map[string]bool
		if err := json.Unmarshal(raw, &flags); err != nil {
			return apperr.Validationf("feature flags must map names to booleans: %v", err)
		}
		return nil

	case ns == NamespaceDefaults && key == KeyQueue:
		var d QueueDefaultSettings
		if err := json.Unmarshal(raw, &d); err != nil {
			return apperr.Validationf("queue defaults must be an object: %v", err)
		}
		return nil

	case ns == NamespaceUI && key == KeyBuildID:
		var doc buildIDDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return apperr.Validationf("ui build id must be an object: %v", err)
		}
		return nil
	}
	return nil
}

func validationList(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return apperr.ValidationList(problems)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
