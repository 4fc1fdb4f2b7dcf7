// Package server provides the HTTP server setup and wiring for the
// deployment record API.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/shipyard/internal/config"
	deploymentsDomain "github.com/pendergraft/shipyard/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/shipyard/internal/deployments/transport"
	"github.com/pendergraft/shipyard/internal/middleware/logging"
	"github.com/pendergraft/shipyard/internal/middleware/ratelimit"
	"github.com/pendergraft/shipyard/internal/observability/metrics"
	"github.com/pendergraft/shipyard/internal/storage"
)

// Server is the read-only HTTP API over the deployment record store
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	deploymentsSvc deploymentsTransport.Service
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	s.deploymentsSvc = deploymentsDomain.NewService(store)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

func (s *Server) setupMiddleware() {
	// Rate limiting runs before request logging so rejected floods don't
	// drown the log. Health checks bypass the limiter.
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	// Prometheus metrics (404 when disabled)
	s.router.Handle("/metrics", metrics.Handler())

	deploymentsHandler := deploymentsTransport.NewHandler(s.deploymentsSvc)

	// API v1 routes. The record server is read only; all writes happen
	// through the CLI pipeline.
	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/deployments", func(r chi.Router) {
			deploymentsHandler.RegisterRoutes(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
