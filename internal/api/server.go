// Package api provides the HTTP surface of the workflow service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/workflow"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, orch *workflow.Orchestrator, repo domain.Repository, cache domain.Cache, bus domain.EventBus, analyzer *fraud.CELAnalyzer, version string) *Server {
	handler := NewHandler(orch, repo, cache, bus, analyzer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Policy request lifecycle
	router.Post("/policy-requests", handler.Create)
	router.Get("/policy-requests/{id}", handler.Get)
	router.Get("/policy-requests/{id}/history", handler.History)
	router.Post("/policy-requests/{id}/fraud-analysis", handler.RunFraudAnalysis)
	router.Post("/policy-requests/{id}/payment", handler.ProcessPayment)
	router.Post("/policy-requests/{id}/subscription", handler.ProcessSubscription)
	router.Post("/policy-requests/{id}/cancel", handler.Cancel)

	// Customer views
	router.Get("/customers/{id}/policy-requests", handler.ListByCustomer)

	// Risk rule management (embedded analyzer)
	router.Get("/risk-rules", handler.ListRiskRules)
	router.Post("/risk-rules", handler.CreateRiskRule)
	router.Post("/risk-rules/reload", handler.ReloadRiskRules)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
