package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openworm/wormgraph/config"
	"github.com/openworm/wormgraph/internal/api"
	"github.com/openworm/wormgraph/internal/cache"
	"github.com/openworm/wormgraph/internal/core"
	"github.com/openworm/wormgraph/internal/enrichment"
	"github.com/openworm/wormgraph/internal/health"
	"github.com/openworm/wormgraph/internal/integration"
	"github.com/openworm/wormgraph/internal/lock"
	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/openworm/wormgraph/internal/security"
	"github.com/openworm/wormgraph/internal/store"
	"github.com/openworm/wormgraph/internal/store/memory"
	"github.com/openworm/wormgraph/internal/store/postgres"
	"github.com/openworm/wormgraph/internal/store/sqlite"
	"github.com/openworm/wormgraph/internal/store/typesense"
)

// memoryLimit is the heap size above which the memory check reports degraded.
const memoryLimit = 1 << 30

// Application holds all components of the wormgraph service.
type Application struct {
	cfg           *config.Config
	features      *integration.AdvancedFeaturesManager
	logger        zerolog.Logger
	statements    store.StatementStore
	index         store.IndexStore
	redisClient   *redis.Client
	lockManager   *lock.LockManager
	enricher      *enrichment.Enricher
	engine        *core.Engine
	healthChecker *health.HealthChecker
	router        *api.Router
}

// NewApplication connects the configured stores and wires the engine. The
// health checker and router are built as well; only serve starts them.
func NewApplication(ctx context.Context, cfg *config.Config) (app *Application, err error) {
	features, err := integration.NewAdvancedFeaturesManager(integration.AdvancedFeaturesConfig{
		Tracing:        cfg.Tracing,
		Logging:        cfg.Logging,
		Metrics:        cfg.Metrics,
		CircuitBreaker: cfg.Enrichment.CircuitBreaker,
		Retry:          cfg.Enrichment.Retry,
		RateLimit:      cfg.Security.RateLimit,
		Sanitizer:      cfg.Security.Sanitizer,
		Version:        version,
		Commit:         commit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	obs := features.GetObservability()
	app = &Application{
		cfg:      cfg,
		features: features,
		logger:   obs.GetLogging().GetZerologLogger(),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if app.statements, err = app.openStatementStore(ctx); err != nil {
		return nil, err
	}
	if app.index, err = app.openIndex(ctx); err != nil {
		return nil, err
	}

	if cfg.Cache.Type == "redis" || cfg.Lock.Type == "redis" {
		app.redisClient, err = cache.NewRedisClient(ctx, cache.RedisOptions{
			URL:            cfg.Redis.URL,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			ReadTimeout:    cfg.Redis.ReadTimeout,
			WriteTimeout:   cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.logger.Info().Msg("redis connection established")
	}

	app.lockManager = app.newLockManager()
	if cfg.Enrichment.Enabled {
		app.enricher = app.newEnricher()
	}

	app.engine, err = core.NewEngine(app.statements, app.index, app.enricher, app.lockManager, obs, core.Options{
		HashFunc:  cfg.HashFunc(),
		LockTTL:   cfg.Lock.DefaultTTL,
		TxTimeout: cfg.Engine.TxTimeout,
		BatchSize: cfg.Engine.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	app.healthChecker = health.NewHealthChecker(5 * time.Second)
	app.healthChecker.RegisterComponent("database", health.CreateDatabaseHealthCheck(app.statements))
	if app.index != nil {
		app.healthChecker.RegisterComponent("search", health.CreateSearchHealthCheck(app.index))
	}
	if app.redisClient != nil {
		app.healthChecker.RegisterStore("redis", redisPinger{app.redisClient})
	}
	app.healthChecker.RegisterComponent("enrichment", health.CreateEnrichmentHealthCheck(
		resilience.NewCircuitBreakerHealthCheck(features.GetResilience().GetCircuitBreaker()),
	))
	app.healthChecker.RegisterComponent("memory", health.CreateMemoryHealthCheck(memoryLimit))

	app.router = api.NewRouter(app.engine, app.healthChecker, obs, features.GetSecurity(), api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		Version:        version,
	})

	app.logger.Info().
		Str("store", cfg.Store.Type).
		Str("search", cfg.Search.Type).
		Str("cache", cfg.Cache.Type).
		Str("lock", cfg.Lock.Type).
		Bool("enrichment", cfg.Enrichment.Enabled).
		Msg("application initialized")
	return app, nil
}

func (app *Application) openStatementStore(ctx context.Context) (store.StatementStore, error) {
	cfg := app.cfg.Store
	switch cfg.Type {
	case "postgres":
		// The database may still be starting next to us.
		var pg *postgres.PostgresStore
		err := app.features.GetResilience().DatabaseRetry().Execute(ctx, func() error {
			var err error
			pg, err = postgres.NewPostgresStore(ctx, app.cfg.GetDatabaseURL(), postgres.PoolOptions{
				MaxConns:        cfg.Postgres.MaxConns,
				MinConns:        cfg.Postgres.MinConns,
				MaxConnLifetime: cfg.Postgres.ConnMaxLifetime,
				MaxConnIdleTime: cfg.Postgres.ConnMaxIdleTime,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		pg.SetMetrics(app.features.GetObservability().GetMetrics())
		if cfg.Postgres.MigrateOnStart {
			if err := postgres.NewMigrator(pg.GetPool(), app.logger).Run(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
		}
		app.logger.Info().Msg("postgres connection established")
		return pg, nil
	case "sqlite":
		var s *sqlite.Store
		err := app.features.GetResilience().DatabaseRetry().Execute(ctx, func() error {
			var err error
			s, err = sqlite.Open(ctx, cfg.SQLite.Path)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		app.logger.Info().Str("path", cfg.SQLite.Path).Msg("sqlite store opened")
		return s, nil
	case "memory":
		app.logger.Warn().Msg("using in-memory statement store, data will not survive a restart")
		return memory.NewStatementStore(), nil
	}
	return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
}

// openIndex returns a nil index when search is disabled.
func (app *Application) openIndex(ctx context.Context) (store.IndexStore, error) {
	cfg := app.cfg.Search
	switch cfg.Type {
	case "typesense":
		ts, err := typesense.NewTypesenseStore(&typesense.Config{
			ServerURL:           cfg.URL,
			APIKey:              cfg.APIKey,
			Collection:          cfg.Collection,
			ConnectionTimeout:   cfg.Timeout,
			NumRetries:          cfg.NumRetries,
			RetryInterval:       cfg.RetryInterval,
			HealthCheckInterval: cfg.HealthCheckInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize typesense: %w", err)
		}
		obs := app.features.GetObservability()
		ts.SetObservability(obs.GetLogging(), obs.GetTracing(), obs.GetMetrics())
		if err := ts.EnsureCollection(ctx); err != nil {
			app.logger.Warn().Err(err).Msg("typesense collection not ready, continuing")
		}
		ts.StartHealthMonitor(ctx)
		return ts, nil
	case "memory":
		return memory.NewIndex(), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported search type: %s", cfg.Type)
}

func (app *Application) newLockManager() *lock.LockManager {
	if app.cfg.Lock.Type == "redis" {
		return lock.NewLockManager(lock.NewRedisDistributedLock(app.redisClient, lock.RedisLockOptions{
			KeyPrefix:   app.cfg.Lock.KeyPrefix,
			RetryDelay:  app.cfg.Lock.RetryDelay,
			MaxWaitTime: app.cfg.Lock.MaxWaitTime,
		}))
	}
	return lock.NewLockManager(lock.NewInMemoryDistributedLock())
}

func (app *Application) newEnricher() *enrichment.Enricher {
	cfg := app.cfg.Enrichment
	obs := app.features.GetObservability()
	res := app.features.GetResilience()
	metrics := obs.GetMetrics()

	var cacheStore cache.Store
	if app.cfg.Cache.Type == "redis" {
		cacheStore = cache.NewRedisStore(app.redisClient, app.cfg.Cache.KeyPrefix)
	} else {
		cacheStore = cache.NewMemoryStore(app.cfg.Cache.TTL, app.cfg.Cache.CleanupInterval)
	}
	records := cache.NewManager(cacheStore, app.cfg.Cache.TTL)
	records.OnLookup(func(source string, hit bool) {
		if hit {
			metrics.RecordCacheHit(source)
		} else {
			metrics.RecordCacheMiss(source)
		}
	})

	sourceCfg := func(base string) enrichment.SourceConfig {
		return enrichment.SourceConfig{BaseURL: base, Timeout: cfg.Timeout, UserAgent: cfg.UserAgent}
	}
	sources := []enrichment.Source{
		enrichment.NewWormBaseSource(sourceCfg(cfg.WormBase.BaseURL)),
		enrichment.NewPubMedSource(sourceCfg(cfg.PubMed.BaseURL), cfg.PubMed.APIKey),
		enrichment.NewCrossRefSource(sourceCfg(cfg.CrossRef.BaseURL)),
	}

	limiter := security.NewOutboundLimiter(cfg.RateLimits, cfg.DefaultRate, cfg.Burst)
	breaker := res.ExternalBreaker()
	retry := res.ExternalRetry()
	fetchers := make([]*enrichment.Fetcher, 0, len(sources))
	for _, src := range sources {
		fetchers = append(fetchers, enrichment.NewFetcher(src,
			enrichment.WithLimiter(limiter),
			enrichment.WithCache(records),
			enrichment.WithCircuitBreaker(breaker),
			enrichment.WithRetry(retry),
			enrichment.WithMetrics(metrics),
			enrichment.WithTracing(obs.GetTracing()),
			enrichment.WithFetchLogger(app.logger),
		))
	}

	return enrichment.NewEnricher(fetchers,
		enrichment.WithSanitizer(app.features.GetSecurity().GetSanitizer()),
		enrichment.WithLogger(obs.GetLogging()),
		enrichment.WithEnrichmentMetrics(metrics),
	)
}

// Handler returns the HTTP handler for the application.
func (app *Application) Handler() http.Handler {
	return app.router.SetupRoutes()
}

// Close releases every component that was opened. It is safe on a partially
// built application.
func (app *Application) Close() error {
	var errs []error

	if app.lockManager != nil {
		if err := app.lockManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("lock manager close failed: %w", err))
		}
	}
	if app.index != nil {
		if err := app.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index store close failed: %w", err))
		}
	}
	if app.statements != nil {
		if err := app.statements.Close(); err != nil {
			errs = append(errs, fmt.Errorf("statement store close failed: %w", err))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close failed: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.features.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown failed: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error().Err(err).Msg("some components failed to close")
		return err
	}
	return nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
