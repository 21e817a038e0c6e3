// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdewata/wablast/internal/api"
	"github.com/gdewata/wablast/internal/config"
	"github.com/gdewata/wablast/internal/db"
	"github.com/gdewata/wablast/internal/dispatch"
	"github.com/gdewata/wablast/internal/gateway"
	"github.com/gdewata/wablast/internal/importer"
	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/quota"
	"github.com/gdewata/wablast/internal/reminder"
	"github.com/gdewata/wablast/internal/repository"
	"github.com/gdewata/wablast/internal/webhook"
)

// App is the main application
type App struct {
	config     *config.Config
	database   *db.DB
	guard      *quota.Guard
	dispatcher *dispatch.Dispatcher
	scheduler  *reminder.Scheduler
	apiServer  *api.Server
	logger     *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	database, err := db.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	var guard *quota.Guard
	if cfg.Quota.Enabled {
		guard, err = quota.Open(cfg.Quota.Path, quota.Limits{
			MessagesPerHour: cfg.Quota.MessagesPerHour,
			MessagesPerDay:  cfg.Quota.MessagesPerDay,
		}, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to open quota storage: %w", err)
		}
		logger.Info("send quota enabled",
			"per_hour", cfg.Quota.MessagesPerHour, "per_day", cfg.Quota.MessagesPerDay)
	}

	m := metrics.New()
	sender := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token)

	dispatcher := dispatch.New(database.DB, sender, guard, m, logger, dispatch.Config{
		BatchSize:    cfg.Dispatch.BatchSize,
		MessageDelay: cfg.Dispatch.MessageDelay,
		BatchDelay:   cfg.Dispatch.BatchDelay,
	})
	if err := dispatcher.Recover(); err != nil {
		return nil, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}

	scheduler := reminder.New(database.DB, sender, guard, m, logger, reminder.Config{
		Interval:     cfg.Reminder.Interval,
		MaxReminders: cfg.Reminder.MaxReminders,
		Threshold:    cfg.Reminder.Threshold,
		SendDelay:    cfg.Reminder.SendDelay,
	})

	apiServer := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Importer:   importer.New(database.DB, m, logger),
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Ingestor:   webhook.New(database.DB, m, logger),
		Contacts:   repository.NewContactRepository(database.DB),
		Jobs:       repository.NewJobRepository(database.DB),
		Metrics:    m,
		Logger:     logger.With("component", "api"),
	})

	return &App{
		config:     cfg,
		database:   database,
		guard:      guard,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		apiServer:  apiServer,
		logger:     logger,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting wablast",
		"addr", a.config.Server.ListenAddr,
		"gateway", a.config.Gateway.BaseURL,
		"timezone", a.config.Timezone,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.config.Reminder.Enabled {
		a.scheduler.Start()
	} else {
		a.logger.Info("reminder scheduler disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop taking new requests first.
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}

	// Then drain the background workers.
	a.dispatcher.Stop()
	if a.config.Reminder.Enabled {
		a.scheduler.Stop()
	}

	// Persist quota counters.
	if err := a.guard.Stop(); err != nil {
		a.logger.Error("quota stop error", "error", err)
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
