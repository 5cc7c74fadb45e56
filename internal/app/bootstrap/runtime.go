package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/botlode/brain/internal/api/router"
	appconfig "github.com/botlode/brain/internal/config"
	"github.com/botlode/brain/internal/leads"
	"github.com/botlode/brain/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so both binaries share the
// same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, bot cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores bundles the record store and the optional connections behind it.
type Stores struct {
	Store leads.Store
	// Bots is Store wrapped by the Redis cache when Redis is available.
	Bots  leads.BotStore
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// BuildStores connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise. Production refuses the fallback.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stores := &Stores{}
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		stores.Pool = pool
		stores.Store = leads.NewPostgresStore(pool)
		logger.Info("postgres record store connected")
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL is required in production")
		}
		logger.Warn("DATABASE_URL not set; using in-memory record store")
		stores.Store = leads.NewMemoryStore()
	}

	stores.Bots = stores.Store
	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		stores.Redis = client
		stores.Bots = leads.NewCachedBotStore(stores.Store, client, cfg.BotCacheTTL, logger)
		logger.Info("bot profile cache enabled", "ttl", cfg.BotCacheTTL.String())
	}
	return stores, nil
}

// HealthChecks probes every connection the stores hold.
func (s *Stores) HealthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if s == nil {
		return checks
	}
	if s.Pool != nil {
		checks["postgres"] = s.Pool.Ping
	}
	if s.Redis != nil {
		client := s.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// Close releases the pool and the Redis client.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
