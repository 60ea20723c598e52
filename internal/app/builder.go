package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yagnadeepxo/avici-internal-dashboard/internal/api"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/config"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/db"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/enrich"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/feed"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/geo"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/httpclient"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/ratelimit"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
	pkgsync "github.com/yagnadeepxo/avici-internal-dashboard/internal/sync"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/telemetry"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/versions"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Option is a function that configures the service app builder
type Option func(*appConfig) error

// appConfig collects the builder inputs. Component overrides are primarily
// for testing; anything left nil is built from the configuration.
type appConfig struct {
	config *config.Config

	store             store.Store
	statusPersistence status.StatusPersistence
	telemetry         *telemetry.Telemetry
	fetcher           feed.PageFetcher
	locator           geo.Locator

	// HTTP server options
	address         string
	middlewares     []func(http.Handler) http.Handler
	requestTimeout  time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	// cleanups release what the builder created, in reverse order
	cleanups []func(context.Context) error
}

func baseConfig(opts ...Option) (*appConfig, error) {
	cfg := &appConfig{
		requestTimeout:  defaultRequestTimeout,
		readTimeout:     defaultReadTimeout,
		writeTimeout:    defaultWriteTimeout,
		idleTimeout:     defaultIdleTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetOpsAddress()
	}

	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Option {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the ops HTTP server address, overriding the configuration
func WithAddress(addr string) Option {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares for the ops server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore injects the store instead of connecting to the configured database
func WithStore(s store.Store) Option {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithStatusPersistence injects the run status persistence
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(cfg *appConfig) error {
		cfg.statusPersistence = p
		return nil
	}
}

// WithTelemetry injects telemetry providers. The caller keeps ownership.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithFetcher injects the feed page fetcher used by the sync service
func WithFetcher(f feed.PageFetcher) Option {
	return func(cfg *appConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithLocator injects the geolocation client used by the enrichment service
func WithLocator(l geo.Locator) Option {
	return func(cfg *appConfig) error {
		cfg.locator = l
		return nil
	}
}

// NewSyncApp builds the user sync service
func NewSyncApp(ctx context.Context, opts ...Option) (*ServiceApp, error) {
	return newServiceApp(ctx, coordinator.ServiceSync, buildSyncCoordinator, opts...)
}

// NewEnrichmentApp builds the geolocation enrichment service
func NewEnrichmentApp(ctx context.Context, opts ...Option) (*ServiceApp, error) {
	return newServiceApp(ctx, coordinator.ServiceEnrichment, buildEnrichmentCoordinator, opts...)
}

type coordinatorBuilder func(ctx context.Context, b *appConfig) (coordinator.Coordinator, error)

func newServiceApp(
	ctx context.Context,
	name string,
	buildCoordinator coordinatorBuilder,
	opts ...Option,
) (*ServiceApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	// Release whatever was created if a later step fails
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			runCleanups(context.WithoutCancel(ctx), b.cleanups)
		}
	}()

	if err := buildTelemetry(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to build telemetry: %w", err)
	}
	if err := buildStore(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	if b.statusPersistence == nil {
		b.statusPersistence = status.NewFileStatusPersistence(b.config.GetStatusDir())
	}

	coord, err := buildCoordinator(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s components: %w", name, err)
	}

	httpServer := buildHTTPServer(b)

	cleanupNeeded = false
	return &ServiceApp{
		name:   name,
		config: b.config,
		components: &Components{
			Coordinator:       coord,
			Store:             b.store,
			StatusPersistence: b.statusPersistence,
		},
		httpServer:      httpServer,
		shutdownTimeout: b.shutdownTimeout,
		cleanups:        b.cleanups,
	}, nil
}

func runCleanups(ctx context.Context, cleanups []func(context.Context) error) {
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](ctx); err != nil {
			slog.Error("Cleanup failed", "error", err)
		}
	}
}

func buildTelemetry(ctx context.Context, b *appConfig) error {
	if b.telemetry != nil {
		return nil
	}
	t, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(b.config.Telemetry),
		telemetry.WithServiceVersion(versions.GetVersionInfo().Version),
	)
	if err != nil {
		return err
	}
	b.telemetry = t
	b.cleanups = append(b.cleanups, t.Shutdown)
	return nil
}

func buildStore(ctx context.Context, b *appConfig) error {
	if b.store != nil {
		return nil
	}

	pool, err := db.NewPool(ctx, b.config.Database)
	if err != nil {
		return err
	}
	b.cleanups = append(b.cleanups, closePool(pool))

	s, err := store.NewPostgresStore(pool, store.WithTracer(b.telemetry.Tracer(store.TracerName)))
	if err != nil {
		return err
	}
	b.store = s
	return nil
}

func closePool(pool *pgxpool.Pool) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

// newLimitedClient builds an HTTP client whose calls are admitted by a
// sliding-window limiter owned by this client alone.
func newLimitedClient(
	b *appConfig, name string, timeout time.Duration, rl *config.RateLimitConfig,
) (httpclient.Client, error) {
	limiterMetrics, err := telemetry.NewLimiterMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter metrics: %w", err)
	}

	limiter, err := ratelimit.New(rl.LimiterConfig(), ratelimit.WithWaitObserver(limiterMetrics.WaitObserver(name)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s rate limit: %w", name, err)
	}

	return httpclient.NewDefaultClient(timeout, httpclient.WithLimiter(limiter)), nil
}

func runMetrics(b *appConfig) (*telemetry.RunMetrics, error) {
	m, err := telemetry.NewRunMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create run metrics: %w", err)
	}
	return m, nil
}

// buildSyncCoordinator builds the feed fetcher, sync manager and coordinator
func buildSyncCoordinator(_ context.Context, b *appConfig) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components")

	if b.fetcher == nil {
		feedCfg, err := b.config.RequireFeed()
		if err != nil {
			return nil, err
		}
		client, err := newLimitedClient(b, "feed", feedCfg.GetTimeout(), feedCfg.RateLimit)
		if err != nil {
			return nil, err
		}
		fetcher, err := feed.NewHTTPFetcher(client, feedCfg.BaseURL,
			feed.WithTracer(b.telemetry.Tracer(feed.TracerName)))
		if err != nil {
			return nil, err
		}
		b.fetcher = fetcher
	}

	syncMetrics, err := telemetry.NewSyncMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	rm, err := runMetrics(b)
	if err != nil {
		return nil, err
	}

	syncCfg := b.config.GetSync()
	manager := pkgsync.NewManager(b.fetcher, b.store, b.store,
		pkgsync.WithCheckpointKey(syncCfg.GetCheckpointKey()),
		pkgsync.WithMetrics(syncMetrics),
		pkgsync.WithTracer(b.telemetry.Tracer(pkgsync.TracerName)),
	)

	coord := coordinator.New(coordinator.NewSyncJob(manager), b.statusPersistence, syncCfg.GetInterval(),
		coordinator.WithRunMetrics(rm),
		coordinator.WithLockFile(syncCfg.LockFile),
		coordinator.WithTracer(b.telemetry.Tracer(coordinator.TracerName)),
	)

	slog.Info("Sync components initialized",
		"interval", syncCfg.GetInterval(),
		"checkpoint_key", syncCfg.GetCheckpointKey())
	return coord, nil
}

// buildEnrichmentCoordinator builds the geolocation client, enricher,
// orchestrator and coordinator
func buildEnrichmentCoordinator(_ context.Context, b *appConfig) (coordinator.Coordinator, error) {
	slog.Info("Initializing enrichment components")

	if b.locator == nil {
		geoCfg, err := b.config.RequireGeo()
		if err != nil {
			return nil, err
		}
		apiKey, err := geoCfg.GetAPIKey()
		if err != nil {
			return nil, err
		}

		var client httpclient.Client
		if geoCfg.RateLimit != nil {
			client, err = newLimitedClient(b, "geo", geoCfg.GetTimeout(), geoCfg.RateLimit)
			if err != nil {
				return nil, err
			}
		} else {
			client = httpclient.NewDefaultClient(geoCfg.GetTimeout())
		}

		locator, err := geo.NewClient(client, geoCfg.BaseURL, apiKey,
			geo.WithTracer(b.telemetry.Tracer(geo.TracerName)))
		if err != nil {
			return nil, err
		}
		b.locator = locator
	}

	enrichMetrics, err := telemetry.NewEnrichmentMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment metrics: %w", err)
	}
	rm, err := runMetrics(b)
	if err != nil {
		return nil, err
	}

	tracer := b.telemetry.Tracer(enrich.TracerName)
	enricher := enrich.NewEnricher(b.locator, b.store,
		enrich.WithMetrics(enrichMetrics),
		enrich.WithTracer(tracer),
	)

	enrichCfg := b.config.GetEnrichment()
	orchestrator, err := enrich.NewOrchestrator(b.store, enricher, enrich.Config{
		BatchSize:   enrichCfg.GetBatchSize(),
		RecordDelay: enrichCfg.GetRecordDelay(),
		BatchDelay:  enrichCfg.GetBatchDelay(),
	}, enrich.WithOrchestratorTracer(tracer))
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(coordinator.NewEnrichmentJob(orchestrator), b.statusPersistence, enrichCfg.GetInterval(),
		coordinator.WithRunMetrics(rm),
		coordinator.WithLockFile(enrichCfg.LockFile),
		coordinator.WithTracer(b.telemetry.Tracer(coordinator.TracerName)),
	)

	slog.Info("Enrichment components initialized",
		"interval", enrichCfg.GetInterval(),
		"batch_size", enrichCfg.GetBatchSize())
	return coord, nil
}

// buildHTTPServer builds the ops HTTP server with router and middleware
func buildHTTPServer(b *appConfig) *http.Server {
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if h := b.telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}

	router := api.NewServer(b.store, b.statusPersistence, serverOpts...)

	return &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}
}
