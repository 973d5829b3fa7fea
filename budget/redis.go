package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKeyPrefix is prepended to every budget key.
const RedisKeyPrefix = "stepflow:budget:"

// RedisGuard keeps remaining balances in Redis. Reads and deductions are
// individually atomic, but read-then-record across workflows is not; it does
// not implement Reserver.
type RedisGuard struct {
	client        redis.Cmdable
	defaultBudget int
	logger        *zap.Logger
}

// NewRedisGuard creates a Redis-backed guard on an existing client.
func NewRedisGuard(client redis.Cmdable, defaultBudget int, logger *zap.Logger) *RedisGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGuard{
		client:        client,
		defaultBudget: defaultBudget,
		logger:        logger.With(zap.String("component", "budget_redis")),
	}
}

func (g *RedisGuard) key(contextID string) string {
	return RedisKeyPrefix + contextID
}

// seed 以默认额度初始化未见过的上下文
func (g *RedisGuard) seed(ctx context.Context, contextID string) error {
	if err := g.client.SetNX(ctx, g.key(contextID), g.defaultBudget, 0).Err(); err != nil {
		return fmt.Errorf("seed budget for %s: %w", contextID, err)
	}
	return nil
}

func (g *RedisGuard) GetTokenBudget(ctx context.Context, contextID string) (int, error) {
	if err := g.seed(ctx, contextID); err != nil {
		return 0, err
	}
	v, err := g.client.Get(ctx, g.key(contextID)).Int()
	if errors.Is(err, redis.Nil) {
		return g.defaultBudget, nil
	}
	if err != nil {
		g.logger.Error("budget read failed", zap.String("context_id", contextID), zap.Error(err))
		return 0, fmt.Errorf("read budget for %s: %w", contextID, err)
	}
	return v, nil
}

func (g *RedisGuard) RecordToolResult(ctx context.Context, contextID string, record UsageRecord) error {
	if record.TokensUsed < 0 {
		return fmt.Errorf("tokens used must be non-negative, got %d", record.TokensUsed)
	}
	if err := g.seed(ctx, contextID); err != nil {
		return err
	}
	remaining, err := g.client.DecrBy(ctx, g.key(contextID), int64(record.TokensUsed)).Result()
	if err != nil {
		g.logger.Error("budget deduction failed", zap.String("context_id", contextID), zap.Error(err))
		return fmt.Errorf("deduct budget for %s: %w", contextID, err)
	}
	g.logger.Debug("usage recorded",
		zap.String("context_id", contextID),
		zap.String("tool", record.ToolName),
		zap.Int("tokens", record.TokensUsed),
		zap.Int64("remaining", remaining))
	return nil
}

// SetBudget overwrites a context's remaining balance.
func (g *RedisGuard) SetBudget(ctx context.Context, contextID string, allowance int) error {
	if err := g.client.Set(ctx, g.key(contextID), allowance, 0).Err(); err != nil {
		return fmt.Errorf("set budget for %s: %w", contextID, err)
	}
	return nil
}

// Reset deletes a context's balance so it is reseeded with the default.
func (g *RedisGuard) Reset(ctx context.Context, contextID string) error {
	return g.client.Del(ctx, g.key(contextID)).Err()
}

// Status 只读：未见过的上下文按默认额度报告，不写入 Redis
func (g *RedisGuard) Status(ctx context.Context, contextID string) (Status, error) {
	remaining, err := g.client.Get(ctx, g.key(contextID)).Int()
	if errors.Is(err, redis.Nil) {
		return Status{ContextID: contextID, Remaining: g.defaultBudget}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read budget for %s: %w", contextID, err)
	}
	return Status{ContextID: contextID, Remaining: remaining}, nil
}
