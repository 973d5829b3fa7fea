// MockCapability 的工具能力测试模拟实现。
//
// 支持固定结果、脚本化序列、调用记录与错误场景测试。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/types"
)

// --- MockCapability 结构 ---

// ExecuteFunc 工具执行函数类型
type ExecuteFunc func(ctx context.Context, params map[string]any) (any, error)

// MockCapability 是 tools.Capability 的模拟实现
type MockCapability struct {
	mu sync.Mutex

	// 默认行为
	result any
	err    error
	fn     ExecuteFunc

	// 按调用次序返回的错误，用尽后回到默认行为
	script []error

	// 调用记录
	calls []Call
}

// Call 记录单次执行
type Call struct {
	Params map[string]any
	Result any
	Error  error
}

var _ tools.Capability = (*MockCapability)(nil)

// --- 构造函数和 Builder 方法 ---

// NewMockCapability 创建新的 MockCapability，默认返回 nil 结果且成功
func NewMockCapability() *MockCapability {
	return &MockCapability{}
}

// WithResult 设置固定返回结果
func (m *MockCapability) WithResult(result any) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	return m
}

// WithError 设置固定返回错误
func (m *MockCapability) WithError(err error) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 使用自定义执行函数，优先于固定结果
func (m *MockCapability) WithFunc(fn ExecuteFunc) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// FailFirst 前 n 次调用返回 err，之后按默认行为
func (m *MockCapability) FailFirst(n int, err error) *MockCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.script = append(m.script, err)
	}
	return m
}

// --- Capability 实现 ---

// Execute 执行并记录调用
func (m *MockCapability) Execute(ctx context.Context, params map[string]any) (any, error) {
	m.mu.Lock()
	var (
		result any
		err    error
		fn     = m.fn
	)
	if len(m.script) > 0 {
		err = m.script[0]
		m.script = m.script[1:]
	} else if fn == nil {
		result, err = m.result, m.err
	}
	m.mu.Unlock()

	if err == nil && fn != nil {
		result, err = fn(ctx, params)
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{Params: params, Result: result, Error: err})
	m.mu.Unlock()
	return result, err
}

// --- 调用记录查询 ---

// Calls 返回调用记录副本
func (m *MockCapability) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockCapability) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用，没有调用时为 nil
func (m *MockCapability) LastCall() *Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	c := m.calls[len(m.calls)-1]
	return &c
}

// Reset 清空调用记录
func (m *MockCapability) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// --- 注册辅助 ---

// Register 以给定名称和可选预估 token 把 capability 注册到 r
func Register(r *tools.Registry, name string, c tools.Capability, estimate *int) error {
	return r.Register(tools.Registration{
		Schema: types.ToolSchema{
			Name:            name,
			Description:     "Mock tool: " + name,
			Parameters:      []byte(`{"type":"object"}`),
			EstimatedTokens: estimate,
		},
		Capability: c,
	})
}
