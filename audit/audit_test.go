package audit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type failingBackend struct {
	writes atomic.Int32
}

func (f *failingBackend) Write(context.Context, *Entry) error {
	f.writes.Add(1)
	return errors.New("disk full")
}
func (f *failingBackend) Query(context.Context, *Filter) ([]*Entry, error) { return nil, nil }
func (f *failingBackend) Close() error { return nil }

func TestLogger_LogAssignsIDAndTimestamp(t *testing.T) {
	mem := NewMemoryBackend(0)
	l := NewLogger(Config{Backends: []Backend{mem}, IDGenerator: func() string { return "fixed" }}, zaptest.NewLogger(t))
	defer l.Close()

	e := &Entry{EventType: EventToolResult, ContextID: "ctx", ToolName: "echo", Success: true}
	require.NoError(t, l.Log(context.Background(), e))

	assert.Equal(t, "fixed", e.ID)
	assert.False(t, e.Timestamp.IsZero())

	got, err := l.Query(context.Background(), &Filter{ContextID: "ctx"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, e, got[0])
}

func TestLogger_LogAsyncFlushedOnClose(t *testing.T) {
	mem := NewMemoryBackend(0)
	l := NewLogger(Config{Backends: []Backend{mem}, AsyncWorkers: 2}, nil)

	for i := 0; i < 20; i++ {
		l.LogAsync(&Entry{EventType: EventToolResult, ContextID: "c"})
	}
	require.NoError(t, l.Close())
	assert.Equal(t, 20, mem.Len())

	// 关闭后写入被拒绝
	assert.ErrorIs(t, l.Log(context.Background(), &Entry{}), ErrClosed)
	l.LogAsync(&Entry{})
	assert.Equal(t, 20, mem.Len())
	assert.NoError(t, l.Close())
}

func TestLogger_BackendErrorsJoined(t *testing.T) {
	mem := NewMemoryBackend(0)
	bad := &failingBackend{}
	l := NewLogger(Config{Backends: []Backend{mem, bad}}, nil)
	defer l.Close()

	err := l.Log(context.Background(), &Entry{ContextID: "c"})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, mem.Len(), "healthy backends still receive the entry")
	assert.Equal(t, int32(1), bad.writes.Load())
}

func TestLogger_QueryWithoutBackends(t *testing.T) {
	l := NewLogger(Config{}, nil)
	defer l.Close()

	_, err := l.Query(context.Background(), nil)
	assert.Error(t, err)
}

func TestMemoryBackend_FilterAndPaginate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		tool := "echo"
		if i%2 == 1 {
			tool = "fail"
		}
		require.NoError(t, mem.Write(ctx, &Entry{
			ID:        string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			EventType: EventToolResult,
			ContextID: "c1",
			ToolName:  tool,
		}))
	}

	got, err := mem.Query(ctx, &Filter{ToolName: "fail"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	start := base.Add(2 * time.Minute)
	got, err = mem.Query(ctx, &Filter{StartTime: &start, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)

	got, err = mem.Query(ctx, &Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryBackend_Eviction(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend(10)
	for i := 0; i < 11; i++ {
		require.NoError(t, mem.Write(ctx, &Entry{ID: string(rune('a' + i))}))
	}
	assert.Equal(t, 10, mem.Len())

	all, _ := mem.Query(ctx, nil)
	assert.Equal(t, "b", all[0].ID)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLite(t)
}

func TestGormStore_WriteAndQuery(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormStore(setupTestDB(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Write(ctx, &Entry{
		ID: "1", Timestamp: base, EventType: EventToolResult, RunID: "run-1",
		ContextID: "ctx-a", ToolName: "echo", Success: true, TokensUsed: 7, LatencyMs: 3,
		Metadata: map[string]string{"k": "v"},
	}))
	require.NoError(t, store.Write(ctx, &Entry{
		ID: "2", Timestamp: base.Add(time.Second), EventType: EventBudgetRejected,
		ContextID: "ctx-a", ToolName: "search", Error: "insufficient budget",
	}))
	require.NoError(t, store.Write(ctx, &Entry{
		ID: "3", Timestamp: base.Add(2 * time.Second), EventType: EventToolResult, ContextID: "ctx-b",
	}))

	got, err := store.Query(ctx, &Filter{ContextID: "ctx-a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 7, got[0].TokensUsed)
	assert.Equal(t, map[string]string{"k": "v"}, got[0].Metadata)
	assert.True(t, got[0].Success)

	got, err = store.Query(ctx, &Filter{EventType: EventBudgetRejected})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "insufficient budget", got[0].Error)

	got, err = store.Query(ctx, &Filter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)

	assert.NoError(t, store.Close())
}

func TestGormStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store, err := NewGormStore(setupTestDB(t), nil)
	require.NoError(t, err)

	e := &Entry{ID: "dup", Timestamp: time.Now(), ContextID: "c"}
	require.NoError(t, store.Write(ctx, e))
	assert.Error(t, store.Write(ctx, e))
}
