package budget

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

func TestMemoryGuard_DefaultAllowanceAndRecord(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 100}, zaptest.NewLogger(t))

	remaining, err := g.GetTokenBudget(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, remaining)

	require.NoError(t, g.RecordToolResult(ctx, "c1", UsageRecord{ToolName: "echo", Success: true, TokensUsed: 30}))
	require.NoError(t, g.RecordToolResult(ctx, "c1", UsageRecord{ToolName: "fail", TokensUsed: 0}))

	remaining, _ = g.GetTokenBudget(ctx, "c1")
	assert.Equal(t, 70, remaining)

	st, err := g.Status(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, Status{ContextID: "c1", Allowance: 100, Used: 30, Remaining: 70, Calls: 2, Failures: 1}, st)

	// 其他上下文互不影响
	other, _ := g.GetTokenBudget(ctx, "c2")
	assert.Equal(t, 100, other)
}

func TestMemoryGuard_StatusIsReadOnly(t *testing.T) {
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 100}, nil)

	st, err := g.Status(context.Background(), "unseen")
	require.NoError(t, err)
	assert.Equal(t, Status{ContextID: "unseen", Allowance: 100, Remaining: 100}, st)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.accounts)
}

func TestMemoryGuard_ResetDropsReservations(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 100}, nil)

	r, err := g.Reserve(ctx, "c", 60)
	require.NoError(t, err)
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 10}))

	g.Reset("c")
	st, _ := g.Status(ctx, "c")
	assert.Equal(t, 0, st.Reserved)
	assert.Equal(t, 100, st.Remaining)

	// 重置后释放旧预留为空操作
	require.NoError(t, g.Release(ctx, r))
	st, _ = g.Status(ctx, "c")
	assert.Equal(t, 0, st.Reserved)
	assert.Equal(t, 100, st.Remaining)
}

func TestMemoryGuard_NegativeTokensRejected(t *testing.T) {
	g := NewMemoryGuard(DefaultMemoryConfig(), nil)
	assert.Error(t, g.RecordToolResult(context.Background(), "c", UsageRecord{TokensUsed: -1}))
}

func TestMemoryGuard_Overdraw(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 10}, nil)
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 25}))

	remaining, _ := g.GetTokenBudget(ctx, "c")
	assert.Equal(t, -15, remaining)
}

func TestMemoryGuard_SetBudgetAndReset(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 10}, nil)

	g.SetBudget("c", 500)
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 100}))
	remaining, _ := g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 400, remaining)

	g.Reset("c")
	remaining, _ = g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 500, remaining)

	g.Reset("")
	remaining, _ = g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 10, remaining)
}

func TestMemoryGuard_Reservations(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 100}, nil)

	r1, err := g.Reserve(ctx, "c", 60)
	require.NoError(t, err)
	remaining, _ := g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 40, remaining)

	_, err = g.Reserve(ctx, "c", 50)
	assert.ErrorIs(t, err, ErrInsufficientBudget)

	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 45}))
	require.NoError(t, g.Release(ctx, r1))
	require.NoError(t, g.Release(ctx, r1), "double release is a no-op")

	remaining, _ = g.GetTokenBudget(ctx, "c")
	assert.Equal(t, 55, remaining)

	_, err = g.Reserve(ctx, "c", -1)
	assert.Error(t, err)
}

func TestMemoryGuard_Alerts(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 100, AlertThreshold: 0.5}, nil)

	var mu sync.Mutex
	var got []AlertType
	var wg sync.WaitGroup
	wg.Add(2)
	g.OnAlert(func(a Alert) {
		mu.Lock()
		got = append(got, a.Type)
		mu.Unlock()
		wg.Done()
	})

	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 40}))
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 20}))  // 60%: threshold
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 10}))  // no repeat
	require.NoError(t, g.RecordToolResult(ctx, "c", UsageRecord{TokensUsed: 100})) // exhausted

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alerts not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []AlertType{AlertThresholdReached, AlertExhausted}, got)
}

func TestMemoryGuard_ConcurrentReservationsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard(MemoryConfig{DefaultBudget: 1000}, nil)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Reserve(ctx, "shared", 30); err == nil {
				granted.Add(30)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, granted.Load(), int64(1000))
	remaining, _ := g.GetTokenBudget(ctx, "shared")
	assert.GreaterOrEqual(t, remaining, 0)
}

func TestProperty_MemoryGuard_RemainingIsAllowanceMinusUsage(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		allowance := rapid.IntRange(0, 10000).Draw(rt, "allowance")
		usages := rapid.SliceOf(rapid.IntRange(0, 500)).Draw(rt, "usages")

		ctx := context.Background()
		g := NewMemoryGuard(MemoryConfig{DefaultBudget: allowance}, nil)
		total := 0
		for _, u := range usages {
			require.NoError(rt, g.RecordToolResult(ctx, "p", UsageRecord{TokensUsed: u}))
			total += u
		}
		remaining, err := g.GetTokenBudget(ctx, "p")
		require.NoError(rt, err)
		assert.Equal(rt, allowance-total, remaining)
	})
}
