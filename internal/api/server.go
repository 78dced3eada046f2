package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/api/handler"
	mw "github.com/edvin/tenancy/internal/api/middleware"
	"github.com/edvin/tenancy/internal/boundary"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/tenancy"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TemporalHealth is satisfied by a Temporal client.
type TemporalHealth interface {
	CheckHealth(ctx context.Context, request *temporalclient.CheckHealthRequest) (*temporalclient.CheckHealthResponse, error)
}

// TenantRegistry is the tenant store the API reads and validates against.
type TenantRegistry interface {
	handler.TenantStore
	tenancy.TenantLookup
}

// Deps are the collaborators the API server routes to.
type Deps struct {
	CoreDB       Pinger
	Temporal     TemporalHealth
	Tenants      TenantRegistry
	Lifecycle    handler.TenantLifecycle
	Connections  handler.ConnectionManager
	Health       handler.HealthChecker
	CacheMetrics handler.CacheMetricsSource
	// Audit is optional.
	Audit *mw.AuditLogger
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	cfg    *config.Config
	deps   Deps
}

func NewServer(logger zerolog.Logger, cfg *config.Config, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		cfg:    cfg,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	tenantCtx := mw.TenantContext(mw.TenantOptionsFromConfig(s.cfg), s.deps.Tenants, s.logger)

	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	health := handler.NewHealth(s.deps.Health)
	s.router.Route("/health", func(r chi.Router) {
		r.With(tenantCtx).Get("/tenant-system", health.TenantSystem)
		r.With(mw.Auth([]byte(s.cfg.JWTSecret)), tenantCtx, mw.RequireRoot()).Get("/tenants", health.AllTenants)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth([]byte(s.cfg.JWTSecret)))
		r.Use(tenantCtx)
		if s.deps.Audit != nil {
			r.Use(s.deps.Audit.Middleware)
		}

		tenant := handler.NewTenant(s.deps.Lifecycle, s.deps.Tenants, s.deps.Connections, boundary.NewEnforcer(s.logger))
		cache := handler.NewCache(s.deps.CacheMetrics)

		// Tenant-scoped routes
		r.Get("/tenants/{id}", tenant.Get)
		r.Post("/tenants/{id}/connections/refresh", tenant.RefreshConnections)
		r.Get("/tenants/{id}/connections/test", tenant.TestConnections)

		// Administrative routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRoot())
			r.Get("/tenants", tenant.List)
			r.Post("/tenants", tenant.Create)
			r.Post("/tenants/{id}/deactivate", tenant.Deactivate)
			r.Post("/tenants/{id}/reactivate", tenant.Reactivate)
			r.Put("/tenants/{id}/connections/{kind}", tenant.SaveConnection)
			r.Get("/cache/metrics", cache.Metrics)
		})
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.deps.CoreDB.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.deps.Temporal.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
