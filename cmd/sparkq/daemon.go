package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/lockfile"
	"github.com/sparkq/sparkq/pkg/client"
)

const (
	startupWait  = 10 * time.Second
	shutdownWait = 10 * time.Second
	daemonPoll   = 100 * time.Millisecond
)

func newStartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return startDaemon(cmd, opts, cfg)
		},
	}
}

func newStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return stopDaemon(cmd, cfg)
		},
	}
}

func newRestartCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if it is running, then start it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := stopDaemon(cmd, cfg); err != nil {
				return err
			}
			return startDaemon(cmd, opts, cfg)
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pid, err := lockfile.Read(lockfile.PathFor(cfg.Database.Path))
			if err != nil || !lockfile.Alive(pid) {
				fmt.Fprintln(cmd.OutOrStdout(), "sparkq is not running")
				return nil
			}

			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			health, err := c.Health(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(),
					"sparkq is running (pid %d) but not answering on %s: %s\n",
					pid, c.BaseURL(), errorMessage(err))
				return nil
			}
			if opts.jsonOut {
				return printJSON(map[string]interface{}{
					"pid":     pid,
					"url":     c.BaseURL(),
					"status":  health.Status,
					"version": health.Version,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sparkq %s is running (pid %d) on %s\n",
				health.Version, pid, c.BaseURL())
			return nil
		},
	}
}

func newReloadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the config file on the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.newAPIClient()
			if err != nil {
				return err
			}
			resolved, err := c.ReloadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(resolved)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reloaded")
			return nil
		},
	}
}

func startDaemon(cmd *cobra.Command, opts *rootOptions, cfg *config.Config) error {
	pidPath := lockfile.PathFor(cfg.Database.Path)
	if pid, err := lockfile.Read(pidPath); err == nil && lockfile.Alive(pid) {
		return apperr.Conflictf("sparkq is already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	childArgs := []string{"run"}
	if opts.configPath != "" {
		childArgs = append(childArgs, "--config", opts.configPath)
	}

	logPath := daemonLogPath(cfg)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, childArgs...)
	child.Stdout = logFile
	child.Stderr = logFile
	// Own session so the daemon survives this shell and never grabs its tty.
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return err
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	c, err := opts.newAPIClient()
	if err != nil {
		return err
	}
	if err := waitForHealthy(cmd.Context(), c, startupWait); err != nil {
		return fmt.Errorf("sparkq (pid %d) did not become ready within %s, check %s: %w",
			pid, startupWait, logPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sparkq started (pid %d) on %s\n", pid, c.BaseURL())
	return nil
}

// stopDaemon terminates the daemon named by the pid file. A daemon that is
// not running is not an error; restart depends on that.
func stopDaemon(cmd *cobra.Command, cfg *config.Config) error {
	pidPath := lockfile.PathFor(cfg.Database.Path)
	pid, err := lockfile.Read(pidPath)
	if err != nil {
		if apperr.IsNotFound(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "sparkq is not running")
			return nil
		}
		return err
	}
	if !lockfile.Alive(pid) {
		_ = os.Remove(pidPath)
		fmt.Fprintf(cmd.OutOrStdout(), "sparkq is not running (cleared stale pid file for %d)\n", pid)
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	deadline := time.Now().Add(shutdownWait)
	for lockfile.Alive(pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("sparkq (pid %d) did not exit within %s", pid, shutdownWait)
		}
		time.Sleep(daemonPoll)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sparkq stopped (pid %d)\n", pid)
	return nil
}

func waitForHealthy(ctx context.Context, c *client.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(daemonPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		_, err := c.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// daemonLogPath keeps the detached daemon's output next to its database.
func daemonLogPath(cfg *config.Config) string {
	dir := filepath.Dir(cfg.Database.Path)
	name := strings.TrimSuffix(filepath.Base(cfg.Database.Path), filepath.Ext(cfg.Database.Path))
	if name == "" {
		name = "sparkq"
	}
	return filepath.Join(dir, name+".log")
}
