// Package main is the entry point for the gridview server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/gridview/internal/capability"
	"github.com/pitabwire/gridview/internal/config"
	"github.com/pitabwire/gridview/internal/dataset"
	"github.com/pitabwire/gridview/internal/definition"
	"github.com/pitabwire/gridview/internal/observability"
	"github.com/pitabwire/gridview/internal/schema"
	"github.com/pitabwire/gridview/internal/session"
	"github.com/pitabwire/gridview/internal/tables"
	"github.com/pitabwire/gridview/internal/transport"
	"github.com/pitabwire/gridview/model"
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
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability, "gridview", version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "gridview", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Index the OpenAPI schemas that type table columns.
	schemas := schema.NewIndex()
	if err := schemas.Load(schema.SourcesFromDir(cfg.Specs.Directory, cfg.Specs.Files)); err != nil {
		logger.Error("schema index load failed", zap.Error(err))
		return 1
	}
	metrics.SetSchemasIndexed(schemas.Len())

	// Step 5: Load definitions, validate, build registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	validator := definition.NewValidator(cfg.Views.MaxPageSize)
	if verrs := validator.Validate(defs, schemas); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := definition.NewRegistry(defs)
	metrics.SetTablesLoaded(registry.TableCount())

	// Step 6: Initialize capability resolver.
	evaluator, err := buildPolicyEvaluator(cfg.Capability)
	if err != nil {
		logger.Error("capability resolver initialization failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL, cfg.Capability.Cache.MaxEntries, metrics)

	// Step 7: Initialize the dataset cache and the optional postgres pool.
	cache, cacheHealth, cacheCloser, err := buildDatasetCache(ctx, cfg.Datasets.Cache, logger)
	if err != nil {
		logger.Error("dataset cache initialization failed", zap.Error(err))
		return 1
	}

	pool, err := buildPostgresPool(ctx, cfg.Datasets.Postgres, logger)
	if err != nil {
		logger.Error("postgres initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Build providers.
	datasetOpts := []dataset.ProviderOption{
		dataset.WithSchemas(schemas),
		dataset.WithMetrics(metrics),
		dataset.WithLogger(logger),
	}
	if pool != nil {
		datasetOpts = append(datasetOpts, dataset.WithPostgres(pool))
	}
	datasets := dataset.NewProvider(registry, cache, cfg.Datasets, datasetOpts...)
	tableProvider := tables.NewTableProvider(registry, datasets, cfg.Views, metrics, logger)

	store := session.NewMemoryStore(cfg.Views.IdleTTL, cfg.Views.MaxViews, cfg.Views.MaxViewsPerSubject)
	views := session.NewManager(store, tableProvider, datasets, metrics, logger)

	// Step 9: Build HTTP router.
	authenticate, err := transport.NewAuthenticator(cfg.Identity)
	if err != nil {
		logger.Error("authenticator initialization failed", zap.Error(err))
		return 1
	}
	if cfg.Identity.Mode == config.IdentityNone {
		logger.Warn("authentication disabled, every request runs as the development identity",
			zap.String("subject_id", cfg.Identity.DevIdentity.SubjectID),
			zap.String("tenant_id", cfg.Identity.DevIdentity.TenantID),
		)
	}

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.TableCount() > 0 },
		SchemasLoaded: func() bool {
			return len(cfg.Specs.Files) == 0 || schemas.Len() > 0
		},
		DatasetCache: cacheHealth,
	}
	if pool != nil {
		readinessChecks.Postgres = dataset.PgHealth{Pool: pool}
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Authenticate:       authenticate,
		CapabilityResolver: capResolver,
		Tables:             tableProvider,
		Views:              views,
		Metrics:            metrics,
		Logger:             logger,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler:       observability.HandleReady(readinessChecks),
		MetricsHandler:     observability.Handler(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go views.RunSweeper(bgCtx, cfg.Views.SweepInterval)

	reloader := &definition.Reloader{
		Loader:      loader,
		Validator:   validator,
		Index:       schemas,
		Registry:    registry,
		Directories: cfg.Definitions.Directories,
		Metrics:     metrics,
		Logger:      logger,
	}
	go watchReloads(bgCtx, reloader, evaluator, capResolver, logger)

	// Step 11: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("tables", registry.TableCount()),
		zap.Int("schemas", schemas.Len()),
		zap.String("dataset_cache", cfg.Datasets.Cache.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
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

	// Cancel background tasks.
	bgCancel()

	// Close stores.
	if pool != nil {
		pool.Close()
	}
	if cacheCloser != nil {
		if err := cacheCloser(); err != nil {
			logger.Error("dataset cache close error", zap.Error(err))
		}
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildPolicyEvaluator loads the static policy file, or grants every
// capability when none is configured.
func buildPolicyEvaluator(cfg config.CapabilityConfig) (model.PolicyEvaluator, error) {
	if cfg.StaticPolicyFile == "" {
		return capability.NewOpenPolicy(), nil
	}
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("static policy: %w", err)
	}
	return evaluator, nil
}

// buildDatasetCache creates the dataset cache based on config. The returned
// health checker and closer are nil for the in-memory cache.
func buildDatasetCache(ctx context.Context, cfg config.DatasetCacheConfig, logger *zap.Logger) (dataset.Cache, observability.HealthChecker, func() error, error) {
	switch cfg.Driver {
	case config.CacheMemory, "":
		logger.Info("using in-memory dataset cache", zap.Int("max_entries", cfg.MaxEntries))
		return dataset.NewMemoryCache(cfg.MaxEntries), nil, nil, nil
	case config.CacheRedis:
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, nil, fmt.Errorf("dataset cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("dataset cache: ping: %w", err)
		}
		logger.Info("using redis dataset cache", zap.String("addr", addr), zap.Int("db", cfg.DB))
		cache := dataset.NewRedisCache(client, cfg.KeyPrefix)
		return cache, cache, client.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported dataset cache driver: %q", cfg.Driver)
	}
}

// buildPostgresPool connects the pool used by postgres data sources. It
// returns nil when no DSN is configured.
func buildPostgresPool(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		logger.Info("postgres DSN not configured, postgres data sources are unavailable",
			zap.String("dsn_env", cfg.DSNEnv),
		)
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// watchReloads reloads definitions and the capability policy on SIGHUP.
func watchReloads(ctx context.Context, reloader *definition.Reloader, evaluator model.PolicyEvaluator, resolver *capability.Resolver, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloader.Reload(); err != nil {
				logger.Error("definition reload failed, keeping current definitions", zap.Error(err))
			}
			if err := evaluator.Sync(); err != nil {
				logger.Error("capability policy reload failed", zap.Error(err))
				continue
			}
			resolver.InvalidateAll()
		}
	}
}
