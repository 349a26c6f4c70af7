package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/logger"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
	"github.com/sparkq/sparkq/pkg/client"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	serverURL  string
	jsonOut    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sparkq",
		Short: "Local-first task queue for small agent fleets",
		Long: `sparkq runs a single-process task queue daemon (sessions, FIFO queues,
claimable tasks) and wraps its HTTP API for shell use.

Start with "sparkq setup" to write a starter config and initialize the
database, then "sparkq run" (foreground) or "sparkq start" (background).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to sparkq.yaml (defaults to $SPARKQ_CONFIG, then the standard search path)")
	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "daemon base URL (defaults to the configured bind address)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON instead of summaries")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newSetupCommand(opts),
		newStartCommand(opts),
		newStopCommand(opts),
		newStatusCommand(opts),
		newRestartCommand(opts),
		newReloadCommand(opts),
		newSessionCommand(opts),
		newQueueCommand(opts),
		newTaskCommand(opts),
		newConfigCommand(opts),
		newStatsCommand(opts),
		newEventsCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sparkq %s\n", version)
		},
	}
}

// loadConfig reads the config file the persistent flag or environment
// points at.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadWithPath(o.configPath)
	}
	return config.Load()
}

// newAPIClient builds the HTTP client every wrapper command talks through.
func (o *rootOptions) newAPIClient() (*client.Client, error) {
	baseURL := o.serverURL
	if baseURL == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		baseURL = "http://" + cfg.Server.Addr()
	}
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "text", OutputPath: "stderr"})
	if err != nil {
		return nil, err
	}
	return client.New(baseURL, log), nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// resolveSession accepts a session id or name.
func resolveSession(cmd *cobra.Command, c *client.Client, ref string) (*v1.Session, error) {
	if strings.HasPrefix(ref, "ses_") {
		return c.GetSession(cmd.Context(), ref)
	}
	return c.GetSessionByName(cmd.Context(), ref)
}

// resolveQueue accepts a queue id or name.
func resolveQueue(cmd *cobra.Command, c *client.Client, ref string) (*v1.Queue, error) {
	if strings.HasPrefix(ref, "que_") {
		return c.GetQueue(cmd.Context(), ref)
	}
	return c.GetQueueByName(cmd.Context(), ref)
}

// parseJSONValue reads a config value argument: JSON when it parses,
// otherwise the bare string.
func parseJSONValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// requireArg enforces a non-blank positional argument.
func requireArg(value, what string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.Validationf("%s is required", what)
	}
	return nil
}
