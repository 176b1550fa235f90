// Package server is the runtime's administrative REST surface (spec.md
// §6): health, the agent roster, session CRUD and history, pending
// approvals and HITL decisions, and the metrics/audit-log views. It never
// drives a turn itself — POST /sessions/{id}/message (if exposed here)
// and everything bidirectional lives on internal/transportedge; this
// package is deliberately a thin read/decide surface, not the IDE's main
// channel.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agentrt/runtime/internal/agent"
	"github.com/agentrt/runtime/internal/approval"
	"github.com/agentrt/runtime/internal/metrics"
	"github.com/agentrt/runtime/internal/orchestrator"
	"github.com/agentrt/runtime/internal/store"
)

// Config holds the admin server's own HTTP knobs; component dependencies
// (Store, Service, etc.) are passed separately to New.
type Config struct {
	Addr            string
	EnableCORS      bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	InternalAPIKey  string // spec.md §6: shared-secret header this surface requires
}

// DefaultConfig returns sane HTTP defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the admin REST surface's HTTP server.
type Server struct {
	cfg     *Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	sessions  *store.Store
	svc       *orchestrator.Service
	agents    *agent.Registry
	approvals *approval.Manager
	collector *metrics.Collector
}

// New constructs a Server wiring the admin endpoints to the shared
// component instances the composition root already built.
func New(cfg *Config, sessions *store.Store, svc *orchestrator.Service, agents *agent.Registry, approvals *approval.Manager, collector *metrics.Collector, log zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		log:       log,
		sessions:  sessions,
		svc:       svc,
		agents:    agents,
		approvals: approvals,
		collector: collector,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(zerologMiddleware(s.log))
	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
