package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/db"
	"github.com/sparkq/sparkq/internal/lockfile"
	"github.com/sparkq/sparkq/internal/queue/repository/sqlite"
	"github.com/sparkq/sparkq/internal/registry"
)

// starterConfig is written by `sparkq setup` when no config file exists yet.
// Every value shown matches the built-in default, so uncommenting a line and
// leaving it as-is changes nothing.
const starterConfig = `# sparkq configuration. All keys are optional; the values below are the
# built-in defaults. Environment variables win with a SPARKQ_ prefix,
# e.g. SPARKQ_SERVER_PORT=9000.

project:
  name: sparkq

server:
  host: 127.0.0.1
  port: 8716

database:
  driver: sqlite
  path: sparkq.db
  busy_timeout_ms: 5000
  # driver: postgres
  # dsn: postgres://localhost/sparkq

purge:
  enabled: true
  older_than_days: 3
  interval_seconds: 3600

queue_runner:
  auto_fail_interval_seconds: 30

logging:
  level: info
  format: text
  output_path: stdout

events:
  # Leave empty for the in-process bus; set to fan events out over NATS.
  nats_url: ""

# task_classes:
#   NIGHTLY:
#     timeout: 7200
#     description: long batch jobs
# tools:
#   run-nightly:
#     task_class: NIGHTLY
`

func newSetupCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a starter config and initialize the database",
		Long:  "Setup writes a commented sparkq.yaml (unless one exists), creates the database schema and seeds the catalogs. It does not need a running daemon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = os.Getenv("SPARKQ_CONFIG")
			}
			if path == "" {
				path = "sparkq.yaml"
			}

			wrote, err := writeStarterConfig(path, force)
			if err != nil {
				return err
			}
			if wrote {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Keeping existing %s\n", path)
			}

			cfg, err := config.LoadWithPath(path)
			if err != nil {
				return err
			}
			tools, classes, err := initDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (%d tools, %d task classes)\n",
				cfg.Database.Path, tools, classes)
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'sparkq start' to launch the daemon.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func writeStarterConfig(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	} else if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	// The template must stay loadable; catch drift before a user does.
	var probe map[string]interface{}
	if err := yaml.Unmarshal([]byte(starterConfig), &probe); err != nil {
		return false, fmt.Errorf("starter config is not valid yaml: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// initDatabase creates the schema and seeds catalogs without a daemon,
// returning the seeded catalog sizes. It takes the same pid lock 'run' does,
// so pointing setup at a live database fails with a conflict instead of
// racing the daemon's writer.
func initDatabase(ctx context.Context, cfg *config.Config) (int, int, error) {
	lock, err := lockfile.Acquire(lockfile.PathFor(cfg.Database.Path))
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindConflict {
			return 0, 0, apperr.Conflictf("stop the running daemon before re-running setup: %s", appErr.Message)
		}
		return 0, 0, err
	}
	defer func() { _ = lock.Release() }()

	pool, err := db.Open(db.Options{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		BusyTimeout: cfg.Database.BusyTimeoutMS,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = pool.Close() }()

	store, err := sqlite.NewWithDB(pool.Writer(), pool.Reader())
	if err != nil {
		return 0, 0, err
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stderr"})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = log.Sync() }()

	reg, err := registry.New(ctx, store, cfg, log)
	if err != nil {
		return 0, 0, err
	}
	if err := reg.Seed(ctx); err != nil {
		return 0, 0, err
	}
	return len(reg.Tools()), len(reg.TaskClasses()), nil
}
