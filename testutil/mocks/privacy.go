// MockSanitizer 的 PII 处理测试模拟实现。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/stepflow/privacy"
)

// MockSanitizer 是 privacy.Sanitizer 的模拟实现。
// 启用检测时 Tokenize 把每个字符串值替换为 replacement。
type MockSanitizer struct {
	mu          sync.Mutex
	detect      bool
	replacement string
	detectErr   error
	tokenizeErr error

	detectCalls   atomic.Int32
	tokenizeCalls atomic.Int32
}

var _ privacy.Sanitizer = (*MockSanitizer)(nil)

// NewMockSanitizer 创建不检测任何 PII 的 MockSanitizer
func NewMockSanitizer() *MockSanitizer {
	return &MockSanitizer{replacement: "[PII_MOCK]"}
}

// DetectAll 所有参数都视为含 PII
func (m *MockSanitizer) DetectAll(replacement string) *MockSanitizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detect = true
	m.replacement = replacement
	return m
}

// WithDetectError ContainsPII 返回 err
func (m *MockSanitizer) WithDetectError(err error) *MockSanitizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectErr = err
	return m
}

// WithTokenizeError Tokenize 返回 err
func (m *MockSanitizer) WithTokenizeError(err error) *MockSanitizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenizeErr = err
	return m
}

func (m *MockSanitizer) ContainsPII(_ context.Context, _ map[string]any) (bool, error) {
	m.detectCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detect, m.detectErr
}

func (m *MockSanitizer) Tokenize(_ context.Context, params map[string]any) (map[string]any, error) {
	m.tokenizeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokenizeErr != nil {
		return nil, m.tokenizeErr
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, ok := v.(string); ok {
			v = m.replacement
		}
		out[k] = v
	}
	return out, nil
}

// DetectCalls 返回 ContainsPII 调用次数
func (m *MockSanitizer) DetectCalls() int { return int(m.detectCalls.Load()) }

// TokenizeCalls 返回 Tokenize 调用次数
func (m *MockSanitizer) TokenizeCalls() int { return int(m.tokenizeCalls.Load()) }
