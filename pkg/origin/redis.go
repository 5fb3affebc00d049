package origin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/edge-cache/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisKeyPrefix namespaces origin content in Redis.
const DefaultRedisKeyPrefix = "edge:origin:"

// RedisConfig holds the Redis origin configuration.
type RedisConfig struct {
	// KeyPrefix is prepended to the request path to form the Redis key.
	KeyPrefix string

	// Retry controls retries of Redis errors.
	Retry RetryConfig
}

// Redis serves payloads stored as plain string values under KeyPrefix+path.
type Redis struct {
	client *redis.Client
	config RedisConfig
	logger zerolog.Logger
}

// NewRedis creates a Redis origin.
func NewRedis(client *redis.Client, cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisKeyPrefix
	}

	return &Redis{
		client: client,
		config: cfg,
		logger: logger.With().Str("origin", "redis").Logger(),
	}, nil
}

// Name implements Backend.
func (r *Redis) Name() string {
	return "redis"
}

// Key returns the Redis key holding the payload for path.
func (r *Redis) Key(path string) string {
	return r.config.KeyPrefix + path
}

// Fetch reads the payload for path. A missing key is ErrNotFound; other Redis
// errors are retried as network errors.
func (r *Redis) Fetch(ctx context.Context, path string) (p cache.Payload, err error) {
	start := time.Now()
	defer func() { observe(r.Name(), start, err) }()

	key := r.Key(path)

	err = retryWithBackoff(ctx, r.config.Retry, r.logger, func() error {
		data, getErr := r.client.Get(ctx, key).Bytes()
		if getErr != nil {
			if errors.Is(getErr, redis.Nil) {
				return ErrNotFound
			}
			return &Error{Origin: r.Name(), Class: ErrorClassNetwork, Message: "redis get", Err: getErr}
		}
		p = cache.NewPayload(data)
		return nil
	})
	if err != nil {
		return cache.Payload{}, err
	}
	return p, nil
}

// Store writes the payload for path. A zero ttl keeps the value forever.
func (r *Redis) Store(ctx context.Context, path string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.Key(path), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
