package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, cat *catalog.Catalog, policyEngine *policy.Engine, processor *decision.Processor, version string) *Server {
	handler := NewHandler(repo, cache, bus, cat, policyEngine, processor, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Simulations
		r.Route("/simulations", func(r chi.Router) {
			r.Post("/calculate", handler.Calculate)
			r.Post("/", handler.Submit)
			r.Get("/", handler.ListSimulations)
			r.Get("/stats", handler.SimulationStats)
			r.Get("/{id}", handler.GetSimulation)
		})

		// Scoring models
		r.Route("/models", func(r chi.Router) {
			r.Get("/", handler.ListModels)
			r.Post("/", handler.CreateModel)
			r.Post("/validate", handler.ValidateModel)
			r.Get("/{id}", handler.GetModel)
			r.Put("/{id}", handler.UpdateModel)
			r.Delete("/{id}", handler.DeleteModel)
		})

		// Credit products
		r.Route("/products", func(r chi.Router) {
			r.Get("/", handler.ListProducts)
			r.Post("/", handler.CreateProduct)
			r.Get("/{id}", handler.GetProduct)
			r.Put("/{id}", handler.UpdateProduct)
			r.Delete("/{id}", handler.DeleteProduct)
			r.Get("/{id}/variables", handler.ProductVariables)
			r.Get("/{id}/stats", handler.ProductStats)
		})

		// Recommendation policy
		r.Get("/policy", handler.GetPolicy)
		r.Post("/policy", handler.ReplacePolicy)
	})

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
