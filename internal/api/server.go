// Package api provides the operational HTTP server of the sync and enrichment
// services: liveness, readiness, run status, version and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/api/common"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/versions"
)

const readinessTimeout = 2 * time.Second

// Pinger checks connectivity to a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerOption configures the ops server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h on /metrics. Without it the route is not mounted.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

type routes struct {
	pinger   Pinger
	statuses status.StatusPersistence
}

// NewServer creates and configures the ops router
func NewServer(pinger Pinger, statuses status.StatusPersistence, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	rt := &routes{pinger: pinger, statuses: statuses}
	r.Get("/health", rt.health)
	r.Get("/readiness", rt.readiness)
	r.Get("/status", rt.status)
	r.Get("/version", rt.version)

	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (*routes) health(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

func (rt *routes) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := rt.pinger.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness check failed", "error", err)
		common.WriteErrorResponse(w, "store not reachable", http.StatusServiceUnavailable)
		return
	}
	common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
}

func (rt *routes) status(w http.ResponseWriter, r *http.Request) {
	all, err := rt.statuses.LoadAllStatus(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load run status", "error", err)
		common.WriteErrorResponse(w, "failed to load run status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, StatusResponse{Services: all}, http.StatusOK)
}

func (*routes) version(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	common.WriteJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}, http.StatusOK)
}
