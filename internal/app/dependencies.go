package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/discount-calculator/internal/auth"
	"github.com/noah-isme/discount-calculator/internal/common"
	"github.com/noah-isme/discount-calculator/internal/config"
	"github.com/noah-isme/discount-calculator/internal/db"
	"github.com/noah-isme/discount-calculator/internal/discount"
	"github.com/noah-isme/discount-calculator/internal/health"
	"github.com/noah-isme/discount-calculator/internal/lock"
	"github.com/noah-isme/discount-calculator/internal/obs"
	"github.com/noah-isme/discount-calculator/internal/ratelimit"
)

// ApplicationName is reported to Postgres and used as the tracing service name.
const ApplicationName = "discount-api"

// Dependencies holds the shared infrastructure the API is assembled from.
type Dependencies struct {
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Store   discount.Store
	Locker  discount.Locker
	Limiter ratelimit.Limiter
	Admin   *auth.AdminVerifier
	Health  []health.Dependency

	closers []func()
}

// Build connects the configured backends. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Admin: auth.NewAdminVerifier(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)}

	if cfg.RedisURL != "" {
		rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.MetricsEnabled, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = rdb
		deps.closers = append(deps.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		})
		deps.Health = append(deps.Health, health.Dependency{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var store discount.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := discount.NewMemoryStore()
		store = mem
		deps.Health = append(deps.Health, health.Dependency{Name: "store", Check: mem.Ping})
	default:
		if cfg.DBAutoMigrate {
			if err := RunMigrations(cfg.DatabaseURL); err != nil {
				deps.Close()
				return nil, err
			}
			logger.Info().Msg("database migrations applied")
		}
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = pool
		deps.closers = append(deps.closers, pool.Close)
		store = &discount.PGStore{DB: pool}
		deps.Health = append(deps.Health, health.Dependency{Name: "store", Check: pool.Ping})
	}

	if deps.Redis != nil && cfg.RuleCacheTTL > 0 {
		store = &discount.CachedStore{
			Inner:  store,
			Cache:  discount.NewCache(deps.Redis, cfg.RuleCacheTTL),
			Logger: logger.With().Str("component", "rule_cache").Logger(),
		}
	}
	deps.Store = store

	if deps.Redis != nil {
		deps.Locker = lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff}
	} else {
		deps.Locker = &discount.LocalLocker{}
	}

	limiter, err := ratelimit.New(cfg.EvaluateRateLimit, deps.Redis, ratelimit.DefaultPrefix)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	return deps, nil
}

// Service assembles the discount service on top of the dependencies.
func (d *Dependencies) Service(cfg *config.Config, logger zerolog.Logger) *discount.Service {
	return &discount.Service{
		Store:   d.Store,
		Locker:  d.Locker,
		LockTTL: cfg.LockTTL,
		Logger:  logger.With().Str("component", "discount").Logger(),
	}
}

// Handler wires the HTTP handler with admin auth and evaluation throttling.
func (d *Dependencies) Handler(cfg *config.Config, logger zerolog.Logger) *discount.Handler {
	h := &discount.Handler{
		Service: d.Service(cfg, logger),
		Admin:   auth.Middleware{Verifier: d.Admin}.RequireAdmin,
	}
	if d.Limiter != nil {
		h.EvaluateLimit = ratelimit.Handler{
			Limiter: d.Limiter,
			Key: func(r *http.Request) string {
				return common.ClientIP(r, cfg.TrustProxy)
			},
			OnError: func(err error) {
				logger.Warn().Err(err).Msg("rate limiter unavailable")
			},
		}.Middleware
	}
	return h
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// NewPool opens a traced pgx pool and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis parses url, instruments the client with redisotel and pings it.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RunMigrations applies the embedded schema to databaseURL.
func RunMigrations(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("app: DATABASE_URL is required for migrations")
	}
	if err := db.Up(databaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
