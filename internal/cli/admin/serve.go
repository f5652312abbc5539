package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/cloo-solutions/obsidian/internal/config"
	"github.com/cloo-solutions/obsidian/internal/jobs"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/server"
	"github.com/cloo-solutions/obsidian/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the obsidian API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides OBSIDIAN_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := initTelemetry(cfg, logger)
	defer shutdownTelemetry()

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate && cfg.HasDatabase() {
		source, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, source, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.coordinator.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover index: %w", err)
	}
	// Queries get INDEX_NOT_READY until this first rebuild promotes.
	if cfg.RebuildOnStart || !eng.indexReady() {
		go func() {
			if _, err := eng.coordinator.Rebuild(ctx); err != nil {
				logger.Error("startup rebuild failed", zap.Error(err))
			}
		}()
	}

	var worker *jobs.Worker
	if cfg.RebuildInterval > 0 {
		worker = jobs.NewWorker(jobs.NewRebuildWorker(eng.coordinator, logger), cfg.RebuildInterval, logger)
		go worker.Start(ctx)
		logger.Info("rebuild worker started", zap.Duration("interval", cfg.RebuildInterval))
	}

	var health handlers.Pinger
	if eng.pool != nil {
		health = eng.pool
	}

	router := server.NewRouter(server.RouterConfig{
		Logger:          logger,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		MaxJSONBytes:    cfg.MaxJSONBytes,
		ActiveVersion:   eng.activeVersion,
		DocumentHandler: handlers.NewDocumentHandler(eng.ingest, eng.documents),
		QueryHandler:    handlers.NewQueryHandler(eng.query, eng.generator),
		AdminHandler:    handlers.NewAdminHandler(eng.coordinator, eng.documents),
		HealthHandler:   handlers.NewHealthHandler(health, eng.indexReady),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("shutting down")

	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// initTelemetry starts Sentry when a DSN is configured. Failure is logged and
// the server continues without tracing.
func initTelemetry(cfg *config.Config, logger *zap.Logger) func() {
	sampleRate := 0.1
	if cfg.Environment == "development" {
		sampleRate = 1.0
	}
	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
		return func() {}
	}
	return shutdown
}
