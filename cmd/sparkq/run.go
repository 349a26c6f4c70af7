package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sparkq/sparkq/internal/common/config"
	"github.com/sparkq/sparkq/internal/common/httpmw"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/db"
	"github.com/sparkq/sparkq/internal/events"
	gateway "github.com/sparkq/sparkq/internal/gateway/websocket"
	"github.com/sparkq/sparkq/internal/lockfile"
	"github.com/sparkq/sparkq/internal/queue/handlers"
	"github.com/sparkq/sparkq/internal/queue/repository/sqlite"
	"github.com/sparkq/sparkq/internal/queue/service"
	"github.com/sparkq/sparkq/internal/registry"
	"github.com/sparkq/sparkq/internal/telemetry"
	"github.com/sparkq/sparkq/internal/watcher"
)

// shutdownGrace bounds how long in-flight requests may linger after a
// termination signal before the listener is torn down.
const shutdownGrace = 10 * time.Second

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sparkq daemon in the foreground",
		Long:  "Run starts the HTTP API, the websocket feed and the background watcher in the current process. Use 'start' to launch it detached.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func runDaemon(parent context.Context, cfg *config.Config) error {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("Starting sparkq",
		zap.String("version", version),
		zap.String("config_file", cfg.FileUsed),
		zap.String("database", cfg.Database.Path))
	telemetry.Init(version, log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One daemon per database. The lock lives next to the DB file and is
	// taken before the pool opens so a second instance never gets far
	// enough to contend on the schema.
	lock, err := lockfile.Acquire(lockfile.PathFor(cfg.Database.Path))
	if err != nil {
		return err
	}
	log.Debug("Pid lock acquired", zap.String("path", lock.Path()))
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			log.Warn("Failed to release pid file", zap.Error(rerr))
		}
	}()

	pool, err := db.Open(db.Options{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		BusyTimeout: cfg.Database.BusyTimeoutMS,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
	})
	if err != nil {
		return err
	}
	defer func() { _ = pool.Close() }()

	store, err := sqlite.NewWithDB(pool.Writer(), pool.Reader())
	if err != nil {
		return err
	}

	reg, err := registry.New(ctx, store, cfg, log)
	if err != nil {
		return err
	}
	if err := reg.Seed(ctx); err != nil {
		return err
	}

	eventBus, busCleanup, err := events.Provide(cfg.Events, log)
	if err != nil {
		return err
	}
	defer func() { _ = busCleanup() }()

	svc := service.New(store, reg, eventBus, log)
	w := watcher.New(store, reg, eventBus, log)
	gw := gateway.NewGateway(svc, eventBus, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		httpmw.RequestID(),
		httpmw.RequestLogger(log, "sparkq"),
		httpmw.OtelTracing("sparkq"),
		httpmw.CORS(),
	)
	handlers.RegisterRoutes(router, svc, reg, eventBus, version, log)
	gw.SetupRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		gw.Run(gctx)
		return nil
	})

	g.Go(func() error {
		w.Start(gctx)
		<-gctx.Done()
		w.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if terr := telemetry.Shutdown(context.Background()); terr != nil {
		log.Warn("Telemetry shutdown failed", zap.Error(terr))
	}
	log.Info("sparkq stopped")
	return err
}
