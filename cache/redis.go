package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis-backed cache.
type RedisConfig struct {
	TTL           time.Duration
	ExcludedTools []string
}

// Redis is a shared Fallback and Recorder.
type Redis struct {
	client   redis.Cmdable
	ttl      time.Duration
	excluded map[string]struct{}
	logger   *zap.Logger
}

// NewRedis creates a Redis-backed cache on an existing client.
func NewRedis(client redis.Cmdable, config RedisConfig, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultMemoryConfig().DefaultTTL
	}
	return &Redis{
		client:   client,
		ttl:      config.TTL,
		excluded: excludedSet(config.ExcludedTools),
		logger:   logger.With(zap.String("component", "tool_cache_redis")),
	}
}

func (r *Redis) Lookup(ctx context.Context, tool string, params map[string]any) (any, bool, error) {
	if _, skip := r.excluded[tool]; skip {
		return nil, false, nil
	}
	key, err := Key(tool, params)
	if err != nil {
		return nil, false, err
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("cache get failed", zap.String("tool", tool), zap.Error(err))
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}

	data, err := decode(val)
	if err != nil {
		return nil, false, err
	}
	r.logger.Debug("cache hit", zap.String("tool", tool))
	return data, true, nil
}

func (r *Redis) Store(ctx context.Context, tool string, params map[string]any, data any) error {
	if _, skip := r.excluded[tool]; skip {
		return nil
	}
	key, err := Key(tool, params)
	if err != nil {
		return err
	}
	value, err := encode(data)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		r.logger.Error("cache set failed", zap.String("tool", tool), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}
