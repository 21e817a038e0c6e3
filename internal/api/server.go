// Package api exposes the HTTP surface: spreadsheet upload, dispatch
// control, contact listing, the reply webhook and the embedded UI.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gdewata/wablast/internal/config"
	"github.com/gdewata/wablast/internal/dispatch"
	"github.com/gdewata/wablast/internal/importer"
	"github.com/gdewata/wablast/internal/metrics"
	"github.com/gdewata/wablast/internal/reminder"
	"github.com/gdewata/wablast/internal/repository"
	"github.com/gdewata/wablast/internal/web"
	"github.com/gdewata/wablast/internal/webhook"
)

// Server is the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *config.Config

	importer   *importer.Importer
	dispatcher *dispatch.Dispatcher
	scheduler  *reminder.Scheduler
	ingestor   *webhook.Ingestor
	contacts   *repository.ContactRepository
	jobs       *repository.JobRepository
	metrics    *metrics.Metrics

	location *time.Location
	logger   *slog.Logger
}

// ServerOptions holds the dependencies for NewServer
type ServerOptions struct {
	Config     *config.Config
	Importer   *importer.Importer
	Dispatcher *dispatch.Dispatcher
	Scheduler  *reminder.Scheduler
	Ingestor   *webhook.Ingestor
	Contacts   *repository.ContactRepository
	Jobs       *repository.JobRepository
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		config:     opts.Config,
		importer:   opts.Importer,
		dispatcher: opts.Dispatcher,
		scheduler:  opts.Scheduler,
		ingestor:   opts.Ingestor,
		contacts:   opts.Contacts,
		jobs:       opts.Jobs,
		metrics:    opts.Metrics,
		location:   opts.Config.Location(),
		logger:     opts.Logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.metrics.Handler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/send", s.handleSend)
		r.Get("/contacts", s.handleContacts)
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/{id}", s.handleJob)
		r.Post("/jobs/{id}/cancel", s.handleJobCancel)
		r.Get("/reminder", s.handleReminderStatus)
		r.Post("/reminder/pause", s.handleReminderPause)
		r.Post("/reminder/resume", s.handleReminderResume)
	})

	// Inbound reply notifications from the gateway
	s.router.Post("/webhook/fonnte", s.handleWebhook)

	// Embedded UI
	s.router.Handle("/*", web.Handler())
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
