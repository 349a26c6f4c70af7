// Package config loads the SparkQ configuration file and environment
// overrides. It is the file layer of the runtime registry: built-in defaults
// and database entries live in internal/registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for SparkQ.
type Config struct {
	Project           ProjectConfig              `mapstructure:"project"`
	Server            ServerConfig               `mapstructure:"server"`
	Database          DatabaseConfig             `mapstructure:"database"`
	Purge             PurgeConfig                `mapstructure:"purge"`
	QueueRunner       QueueRunnerConfig          `mapstructure:"queue_runner"`
	ScriptDirs        []string                   `mapstructure:"script_dirs"`
	ProjectScriptDirs []string                   `mapstructure:"project_script_dirs"`
	TaskClasses       map[string]TaskClassConfig `mapstructure:"task_classes"`
	Tools             map[string]ToolConfig      `mapstructure:"tools"`
	Features          map[string]bool            `mapstructure:"features"`
	Defaults          DefaultsConfig             `mapstructure:"defaults"`
	Logging           LoggingConfig              `mapstructure:"logging"`
	Events            EventsConfig               `mapstructure:"events"`

	// Path of the config file actually read, empty when running on
	// defaults and environment only.
	FileUsed string `mapstructure:"-"`

	// Top-level sections the config file itself provided, as opposed to
	// values filled in from defaults or environment. The registry uses this
	// to decide which entries the file layer contributes.
	ProvidedSections map[string]bool `mapstructure:"-"`
}

// ProjectConfig identifies the project this instance serves.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

// DatabaseConfig holds storage configuration. SQLite is the default; set
// driver to "postgres" and DSN to use a server database instead.
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite, postgres
	Path          string `mapstructure:"path"`   // sqlite file path
	DSN           string `mapstructure:"dsn"`    // postgres connection string
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
	MaxConns      int    `mapstructure:"max_conns"` // postgres pool ceiling
	MinConns      int    `mapstructure:"min_conns"` // postgres idle floor
}

// PurgeConfig controls deletion of old terminal tasks.
type PurgeConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	OlderThanDays   int  `mapstructure:"older_than_days"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// QueueRunnerConfig controls the deadline watcher.
type QueueRunnerConfig struct {
	AutoFailIntervalSeconds int `mapstructure:"auto_fail_interval_seconds"`
}

// TaskClassConfig describes one task class from the file layer.
type TaskClassConfig struct {
	Timeout     int    `mapstructure:"timeout"` // in seconds
	Description string `mapstructure:"description"`
}

// ToolConfig describes one tool from the file layer.
type ToolConfig struct {
	TaskClass   string `mapstructure:"task_class"`
	Description string `mapstructure:"description"`
}

// DefaultsConfig holds per-entity defaults applied at creation time.
type DefaultsConfig struct {
	Queue QueueDefaults `mapstructure:"queue"`
}

// QueueDefaults are applied to queues created without explicit values.
type QueueDefaults struct {
	Instructions string `mapstructure:"instructions"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// EventsConfig holds event bus configuration. An empty NATS URL selects the
// in-process bus.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns the host:port bind address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BusyTimeout returns the database lock timeout as a time.Duration.
func (d *DatabaseConfig) BusyTimeout() time.Duration {
	return time.Duration(d.BusyTimeoutMS) * time.Millisecond
}

// Interval returns the purge interval as a time.Duration.
func (p *PurgeConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// AutoFailInterval returns the stale-check interval as a time.Duration.
func (q *QueueRunnerConfig) AutoFailInterval() time.Duration {
	return time.Duration(q.AutoFailIntervalSeconds) * time.Second
}

// detectDefaultLogFormat returns "json" for production environments and
// "text" (human-readable console output) for terminal use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("SPARKQ_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("project.name", "sparkq")

	// Server defaults. Local-first: bind loopback unless told otherwise.
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8716)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "sparkq.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	// Purge defaults
	v.SetDefault("purge.enabled", true)
	v.SetDefault("purge.older_than_days", 3)
	v.SetDefault("purge.interval_seconds", 3600)

	// Watcher defaults
	v.SetDefault("queue_runner.auto_fail_interval_seconds", 30)

	v.SetDefault("script_dirs", []string{})
	v.SetDefault("project_script_dirs", []string{})

	// Tool and task-class catalogs are intentionally not defaulted here:
	// built-ins live in the registry layer so file-provided entries stay
	// distinguishable from compiled ones.

	v.SetDefault("defaults.queue.instructions", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.output_path", "stdout")

	// Events defaults - empty URL means use the in-process bus
	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.max_reconnects", 10)
}

// Load reads configuration from environment variables, the config file, and
// defaults. Environment variables use the prefix SPARKQ_ with snake_case
// naming. The config file is sparkq.yaml, found via SPARKQ_CONFIG, the
// current directory, ~/.sparkq/, or /etc/sparkq/, in that order.
func Load() (*Config, error) {
	return LoadWithPath(os.Getenv("SPARKQ_CONFIG"))
}

// LoadWithPath reads configuration from the specified file, falling back to
// the default search locations when path is empty.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SPARKQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("sparkq")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".sparkq"))
		}
		v.AddConfigPath("/etc/sparkq/")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.FileUsed = v.ConfigFileUsed()
	cfg.ProvidedSections = providedSections(v)

	// Relative storage paths are anchored to the config file's directory so
	// the same file works from any working directory.
	if cfg.FileUsed != "" && cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(filepath.Dir(cfg.FileUsed), cfg.Database.Path)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// providedSections reports which top-level sections appear in the config
// file itself (not from defaults or environment overrides).
func providedSections(v *viper.Viper) map[string]bool {
	sections := make(map[string]bool)
	if v.ConfigFileUsed() == "" {
		return sections
	}
	for _, key := range v.AllKeys() {
		if !v.InConfig(key) {
			continue
		}
		if i := strings.Index(key, "."); i > 0 {
			sections[key[:i]] = true
		} else {
			sections[key] = true
		}
	}
	return sections
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite", "sqlite3":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or postgres, got %q", cfg.Database.Driver))
	}
	if cfg.Database.BusyTimeoutMS <= 0 {
		errs = append(errs, "database.busy_timeout_ms must be positive")
	}
	if cfg.Database.MaxConns > 0 && cfg.Database.MinConns > cfg.Database.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}

	if cfg.Purge.OlderThanDays <= 0 {
		errs = append(errs, "purge.older_than_days must be positive")
	}
	if cfg.Purge.IntervalSeconds <= 0 {
		errs = append(errs, "purge.interval_seconds must be positive")
	}
	if cfg.QueueRunner.AutoFailIntervalSeconds <= 0 {
		errs = append(errs, "queue_runner.auto_fail_interval_seconds must be positive")
	}

	for name, tc := range cfg.TaskClasses {
		if tc.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("task_classes.%s.timeout must be positive", name))
		}
	}
	for name, tool := range cfg.Tools {
		if tool.TaskClass == "" {
			errs = append(errs, fmt.Sprintf("tools.%s.task_class is required", name))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
