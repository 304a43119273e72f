// Package main is the entry point for the ShadeView visualization server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ngasani/shadeview/internal/catalog"
	"github.com/ngasani/shadeview/internal/config"
	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/internal/renderer"
	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/internal/simulate"
	"github.com/ngasani/shadeview/internal/transport"
	"github.com/ngasani/shadeview/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env-file", "", "optional .env file for local development")
	flag.Parse()

	// Local development convenience; production deployments set real
	// environment variables.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
			return 1
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "shadeview", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Load and validate the catalog seed data.
	loader := catalog.NewLoader()
	seed, err := loader.LoadAll(cfg.Catalog.SeedDirectories)
	if err != nil {
		logger.Error("catalog loading failed", zap.Error(err))
		return 1
	}
	if verrs := catalog.Validate(seed); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("catalog validation error", zap.String("error", ve.Error()))
		}
		logger.Error("catalog validation failed", zap.Int("errors", len(verrs)))
		return 1
	}
	catalogStore := catalog.NewStore(seed)
	for _, t := range model.ProductTypes {
		metrics.SetCatalogCompaniesLoaded(string(t), float64(len(seed.Companies(t))))
	}

	// Session persistence.
	sessionStore, sessionCloser, err := buildSessionStore(ctx, cfg.Sessions, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}

	// Simulate-request deduplication.
	idemStore, idemCloser, err := buildIdempotencyStore(cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}

	// The renderer credential comes only from the environment. It is never
	// read from the config file.
	apiKey := os.Getenv(cfg.Renderer.APIKeyEnv)
	if apiKey == "" {
		logger.Error("renderer API key not set", zap.String("env", cfg.Renderer.APIKeyEnv))
		return 1
	}
	rendererClient := renderer.NewClient(cfg.Renderer, apiKey, metrics.RecordRendererRequest)

	engine := session.NewEngine(sessionStore, catalogStore)
	orchestrator := simulate.NewOrchestrator(engine, catalogStore, rendererClient, idemStore, metrics, logger)

	// Catalog admin routes sit behind JWT verification when enabled.
	var adminAuth func(http.Handler) http.Handler
	if cfg.AdminAuth.Enabled {
		jwks := transport.NewJWKSClient(cfg.AdminAuth.JWKSURL, cfg.AdminAuth.JWKSCacheTTL, logger)
		adminAuth = transport.JWTAuthenticator(cfg.AdminAuth, jwks)
	} else {
		logger.Warn("catalog admin authentication is disabled")
	}

	readinessChecks := observability.ReadinessChecks{
		CatalogLoaded: func() bool {
			snap := catalogStore.Snapshot()
			for _, t := range model.ProductTypes {
				if len(snap.Companies(t)) > 0 {
					return true
				}
			}
			return false
		},
	}
	if hc, ok := sessionStore.(observability.HealthChecker); ok {
		readinessChecks.SessionStore = hc
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		readinessChecks.IdempotencyStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Engine:       engine,
		Orchestrator: orchestrator,
		Catalog:      catalogStore,
		Metrics:      metrics,
		AdminAuth:    adminAuth,
		Readiness:    observability.HandleReady(readinessChecks),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go runBreakerGauge(bgCtx, rendererClient, metrics)

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("renderer_model", cfg.Renderer.Model),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	bgCancel()

	if sessionCloser != nil {
		sessionCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the session store based on config.
func buildSessionStore(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("session store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: ping: %w", err)
		}

		return session.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
// Returns nil when deduplication is disabled.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (simulate.IdempotencyStore, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory idempotency store")
		return simulate.NewMemoryIdempotencyStore(cfg.DefaultTTL), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("idempotency store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.DB,
		})
		return simulate.NewRedisIdempotencyStore(client, cfg.DefaultTTL), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Driver)
	}
}

// runBreakerGauge periodically reflects the renderer breaker state into the
// Prometheus gauge.
func runBreakerGauge(ctx context.Context, client *renderer.Client, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var v float64
			switch client.BreakerState() {
			case renderer.BreakerClosed:
				v = 0
			case renderer.BreakerHalfOpen:
				v = 1
			case renderer.BreakerOpen:
				v = 2
			}
			metrics.SetRendererBreakerState(v)
		}
	}
}
