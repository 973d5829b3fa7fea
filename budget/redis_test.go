package budget

import (
	"context"
	"testing"

	"github.com/BaSui01/stepflow/testutil"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisGuard) {
	t.Helper()
	mr, client := testutil.NewRedis(t)
	return mr, NewRedisGuard(client, 200, zap.NewNop())
}

func TestRedisGuard_SeedAndDeduct(t *testing.T) {
	ctx := context.Background()
	mr, g := setupTestRedis(t)

	remaining, err := g.GetTokenBudget(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 200, remaining)

	v, err := mr.Get(RedisKeyPrefix + "c1")
	require.NoError(t, err)
	assert.Equal(t, "200", v)

	require.NoError(t, g.RecordToolResult(ctx, "c1", UsageRecord{ToolName: "echo", TokensUsed: 75}))
	remaining, err = g.GetTokenBudget(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 125, remaining)

	// 首次直接记录的上下文同样先以默认额度开户
	require.NoError(t, g.RecordToolResult(ctx, "c2", UsageRecord{TokensUsed: 10}))
	remaining, _ = g.GetTokenBudget(ctx, "c2")
	assert.Equal(t, 190, remaining)

	assert.Error(t, g.RecordToolResult(ctx, "c1", UsageRecord{TokensUsed: -1}))
}

func TestRedisGuard_SetBudgetResetStatus(t *testing.T) {
	ctx := context.Background()
	_, g := setupTestRedis(t)

	require.NoError(t, g.SetBudget(ctx, "c", 50))
	st, err := g.Status(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 50, st.Remaining)

	require.NoError(t, g.Reset(ctx, "c"))
	remaining, _ := g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 200, remaining)
}

func TestRedisGuard_StatusIsReadOnly(t *testing.T) {
	ctx := context.Background()
	mr, g := setupTestRedis(t)

	st, err := g.Status(ctx, "unseen")
	require.NoError(t, err)
	assert.Equal(t, Status{ContextID: "unseen", Remaining: 200}, st)
	assert.False(t, mr.Exists(RedisKeyPrefix+"unseen"))
}

func TestRedisGuard_ConnectionError(t *testing.T) {
	ctx := context.Background()
	mr, g := setupTestRedis(t)
	mr.Close()

	_, err := g.GetTokenBudget(ctx, "c")
	assert.Error(t, err)
	assert.Error(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 1}))
}

func TestRedisGuard_IsNotReserver(t *testing.T) {
	_, g := setupTestRedis(t)
	var guard Guard = g
	_, ok := guard.(Reserver)
	assert.False(t, ok)
}
