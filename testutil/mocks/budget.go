// MockGuard 的预算守卫测试模拟实现。
//
// 支持固定余额、错误注入与使用记录检查。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/stepflow/budget"
)

// MockGuard 是 budget.Guard 的模拟实现，所有上下文共享一个余额
type MockGuard struct {
	mu sync.Mutex

	remaining int
	getErr    error
	recordErr error

	records []budget.UsageRecord
}

var _ budget.Guard = (*MockGuard)(nil)

// NewMockGuard 创建余额为 remaining 的 MockGuard
func NewMockGuard(remaining int) *MockGuard {
	return &MockGuard{remaining: remaining}
}

// WithGetError GetTokenBudget 返回 err
func (m *MockGuard) WithGetError(err error) *MockGuard {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithRecordError RecordToolResult 返回 err，记录仍会保存
func (m *MockGuard) WithRecordError(err error) *MockGuard {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErr = err
	return m
}

func (m *MockGuard) GetTokenBudget(ctx context.Context, _ string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.remaining, nil
}

func (m *MockGuard) RecordToolResult(_ context.Context, _ string, record budget.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if m.recordErr != nil {
		return m.recordErr
	}
	m.remaining -= record.TokensUsed
	return nil
}

// Records 返回收到的使用记录副本
func (m *MockGuard) Records() []budget.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]budget.UsageRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Remaining 返回当前余额
func (m *MockGuard) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}
