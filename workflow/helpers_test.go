package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/types"
	"github.com/stretchr/testify/require"
)

var errToolBroken = errors.New("tool broken")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingTool wraps a capability and counts executions.
type countingTool struct {
	calls atomic.Int32
	fn    func(ctx context.Context, params map[string]any) (any, error)
}

func (c *countingTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	c.calls.Add(1)
	return c.fn(ctx, params)
}

func succeedWith(payload any) *countingTool {
	return &countingTool{fn: func(context.Context, map[string]any) (any, error) { return payload, nil }}
}

func alwaysFail() *countingTool {
	return &countingTool{fn: func(context.Context, map[string]any) (any, error) { return nil, errToolBroken }}
}

// failTimes fails the first n calls and then succeeds with payload.
func failTimes(n int32, payload any) *countingTool {
	t := &countingTool{}
	t.fn = func(context.Context, map[string]any) (any, error) {
		if t.calls.Load() <= n {
			return nil, errToolBroken
		}
		return payload, nil
	}
	return t
}

func register(t testing.TB, r *tools.Registry, name string, c tools.Capability, estimate *int) {
	t.Helper()
	require.NoError(t, r.Register(tools.Registration{
		Schema:     types.ToolSchema{Name: name, EstimatedTokens: estimate},
		Capability: c,
	}))
}

// guardOnly hides optional interfaces of a guard.
type guardOnly struct {
	budget.Guard
}

// fakeRecorder counts Recorder calls.
type fakeRecorder struct {
	mu          sync.Mutex
	workflows   int
	attempts    map[string]int
	invocations int
	recoveries  map[string]int
	rejections  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{attempts: map[string]int{}, recoveries: map[string]int{}}
}

func (f *fakeRecorder) RecordWorkflow(bool, int, int, time.Duration) {
	f.mu.Lock()
	f.workflows++
	f.mu.Unlock()
}

func (f *fakeRecorder) RecordAttempt(_ string, outcome string) {
	f.mu.Lock()
	f.attempts[outcome]++
	f.mu.Unlock()
}

func (f *fakeRecorder) RecordInvocation(string, bool, int, time.Duration) {
	f.mu.Lock()
	f.invocations++
	f.mu.Unlock()
}

func (f *fakeRecorder) RecordRecovery(kind string) {
	f.mu.Lock()
	f.recoveries[kind]++
	f.mu.Unlock()
}

func (f *fakeRecorder) RecordBudgetRejection(string) {
	f.mu.Lock()
	f.rejections++
	f.mu.Unlock()
}

// countingFallback records cache lookups and always misses.
type countingFallback struct {
	lookups atomic.Int32
}

func (c *countingFallback) Lookup(context.Context, string, map[string]any) (any, bool, error) {
	c.lookups.Add(1)
	return nil, false, nil
}
