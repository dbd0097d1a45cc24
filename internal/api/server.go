// Package api exposes the pair sync admin surface over HTTP using huma on chi.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/ratelimit"
)

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins       []string
	BulkRatePerMinute int
	BulkBurst         int
	HealthChecks      []HealthCheck
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services     *Services
	tokens       *auth.TokenService
	router       *chi.Mux
	api          huma.API
	bulkLimiter  *ratelimit.KeyedRateLimiter
	healthChecks []HealthCheck
	logger       *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, tokens *auth.TokenService, opts Options, logger *slog.Logger) *Server {
	if opts.BulkRatePerMinute <= 0 {
		opts.BulkRatePerMinute = 120
	}
	if opts.BulkBurst <= 0 {
		opts.BulkBurst = 20
	}

	s := &Server{
		services:     services,
		tokens:       tokens,
		router:       chi.NewRouter(),
		bulkLimiter:  ratelimit.New(ratelimit.PerInterval(opts.BulkRatePerMinute, time.Minute), opts.BulkBurst, 10*time.Minute),
		healthChecks: opts.HealthChecks,
		logger:       logger,
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("PairSync API", "1.0.0")
	humaConfig.Info.Description = "Keeps paired post types and taxonomies in lockstep."
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()

	return s
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	if len(origins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "Location"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	s.router.Use(rateLimitMiddleware(s.bulkLimiter, s.logger))
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerSyncRoutes()
	s.registerRecordRoutes()
	s.registerRelationshipRoutes()
}

// API returns the huma API, used by tests.
func (s *Server) API() huma.API {
	return s.api
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.bulkLimiter.Stop()
}
