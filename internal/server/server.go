// Package server provides the HTTP server and routing for the signal service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
	"github.com/aristath/sentinel-signals/internal/scheduler"
	"github.com/aristath/sentinel-signals/internal/work"
)

// SignalService processes and reads signals for one instrument
type SignalService interface {
	Process(ctx context.Context, symbol string, mode domain.Mode) signals.Result
	Latest(ctx context.Context, symbol string, limit int) ([]domain.SignalRow, error)
}

// RunTrigger runs the pipeline over the universe
type RunTrigger interface {
	Run(ctx context.Context, mode domain.Mode) (work.Summary, error)
}

// JobLister reports scheduled jobs
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Service     SignalService
	Runner      RunTrigger
	Jobs        JobLister
	HealthCheck func(ctx context.Context) error
	Metrics     http.Handler
	Port        int
	DevMode     bool
	Version     string
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	service     SignalService
	runner      RunTrigger
	jobs        JobLister
	healthCheck func(ctx context.Context) error
	metrics     http.Handler
	port        int
	version     string

	runActive atomic.Bool
	runCtx    context.Context
	runStop   context.CancelFunc
	runDone   chan struct{}
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	runCtx, runStop := context.WithCancel(context.Background())
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		service:     cfg.Service,
		runner:      cfg.Runner,
		jobs:        cfg.Jobs,
		healthCheck: cfg.HealthCheck,
		metrics:     cfg.Metrics,
		port:        cfg.Port,
		version:     cfg.Version,
		runCtx:      runCtx,
		runStop:     runStop,
		runDone:     make(chan struct{}, 1),
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// A periodic run of one instrument fits a forest; leave room for it
	s.router.Use(middleware.Timeout(5 * time.Minute))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/signals/{symbol}", s.handleLatestSignals)
		r.Post("/signals/{symbol}", s.handleProcessSymbol)
		r.Post("/runs", s.handleStartRun)
		r.Get("/jobs", s.handleJobs)
	})
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown cancels any run started over HTTP and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.runStop()
	if s.runActive.Load() {
		select {
		case <-s.runDone:
		case <-ctx.Done():
		}
	}
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
