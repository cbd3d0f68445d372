// Package app wires infrastructure clients and HTTP routes for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/checkout"
	"github.com/noah-isme/craftshop-api/internal/config"
	"github.com/noah-isme/craftshop-api/internal/health"
	"github.com/noah-isme/craftshop-api/internal/obs"
	"github.com/noah-isme/craftshop-api/internal/ratelimit"
	"github.com/noah-isme/craftshop-api/internal/resilience"
	"github.com/noah-isme/craftshop-api/internal/shipping"
)

// Dependencies holds the long-lived clients shared by the API and worker.
type Dependencies struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client
	RedisOpt   asynq.RedisConnOpt
	Limiter    *limiter.Limiter
}

// Open connects to Postgres and Redis and prepares the task client.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	pool, err := InitDatabase(ctx, cfg.DatabaseURL, cfg.ObsServiceName)
	if err != nil {
		return nil, err
	}
	rdb, err := InitRedis(ctx, cfg.RedisURL, cfg.ObsMetricsEnabled, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("app: parse redis uri for tasks: %w", err)
	}
	lim, err := ratelimit.NewRedisLimiter(rdb, "rl:checkout:", cfg.CheckoutRateLimit)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	return &Dependencies{
		DB:         pool,
		Redis:      rdb,
		TaskClient: asynq.NewClient(redisOpt),
		RedisOpt:   redisOpt,
		Limiter:    lim,
	}, nil
}

// Close releases every client. Errors are joined.
func (d *Dependencies) Close() error {
	var errs []error
	if d.TaskClient != nil {
		errs = append(errs, d.TaskClient.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}

// InitDatabase opens a traced pgx pool and pings it.
func InitDatabase(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("app: connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping database: %w", err)
	}
	return pool, nil
}

// InitRedis opens an instrumented Redis client and pings it.
func InitRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", err)
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
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	return client, nil
}

// Components assembles the production collaborators for NewRouter.
func (d *Dependencies) Components(cfg *config.Config, logger zerolog.Logger, metrics *obs.HTTPMetrics) Components {
	var payments checkout.Gateway
	if cfg.StripeSecretKey != "" {
		payments = checkout.NewStripeGateway(cfg.StripeSecretKey)
	}
	return Components{
		Catalog:  catalog.NewPGStore(d.DB),
		Provider: NewRateProvider(cfg, d.Redis, logger),
		Payments: payments,
		Redis:    d.Redis,
		Tasks:    d.TaskClient,
		Limiter:  d.Limiter,
		Checks:   []health.Check{health.Postgres(d.DB), health.Redis(d.Redis)},
		Metrics:  metrics,
		Logger:   logger,
	}
}

// NewRateProvider returns the configured carrier client wrapped in the quote
// cache, or nil when no carrier is configured so estimates use the fallback.
func NewRateProvider(cfg *config.Config, rdb redis.UniversalClient, logger zerolog.Logger) shipping.Provider {
	sc := cfg.Shipping
	if sc.Provider != "shippo" || sc.ShippoAPIKey == "" {
		logger.Warn().Str("provider", sc.Provider).Msg("no carrier configured, shipping uses category rates")
		return nil
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  sc.BreakerMinRequests,
		FailureRatio: sc.BreakerFailRatio,
		OpenFor:      sc.BreakerOpenFor,
		Target:       "shippo",
	}).WithLogger(logger)
	client := shipping.NewShippoClient(shipping.ShippoConfig{
		APIKey:  sc.ShippoAPIKey,
		BaseURL: sc.ShippoBaseURL,
		Timeout: sc.ProviderTimeout,
		Breaker: breaker,
	})
	if rdb == nil || sc.QuoteCacheTTL <= 0 {
		return client
	}
	return shipping.NewCachedProvider(client, rdb, sc.QuoteCacheTTL, logger).WithCallTimeout(sc.ProviderTimeout)
}
