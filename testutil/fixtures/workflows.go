// Package fixtures 提供工作流请求与工具 Schema 样例。
package fixtures

import (
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow"
)

// =============================================================================
// 📋 工作流请求
// =============================================================================

// EchoWorkflow 两个内置工具组成的成功工作流
func EchoWorkflow(contextID string) *workflow.Request {
	return &workflow.Request{
		ContextID: contextID,
		Steps: []workflow.Step{
			{Tool: "echo", Params: map[string]any{"text": "hello world"}},
			{Tool: "word_count", Params: map[string]any{"text": "one two three"}},
		},
	}
}

// FailingWorkflow 第二步必然失败的工作流，单次尝试
func FailingWorkflow(contextID string) *workflow.Request {
	return &workflow.Request{
		ContextID: contextID,
		Steps: []workflow.Step{
			{Tool: "echo", Params: map[string]any{"text": "first"}},
			{Tool: "fail", Params: map[string]any{"message": "upstream down"}, Retries: 1},
		},
	}
}

// FallbackWorkflow 主工具失败后由 echo 接替
func FallbackWorkflow(contextID string) *workflow.Request {
	return &workflow.Request{
		ContextID: contextID,
		Steps: []workflow.Step{
			{Tool: "fail", Fallback: "echo", Retries: 1, Params: map[string]any{"text": "via fallback"}},
		},
	}
}

// PIIWorkflow 参数中含邮箱与电话
func PIIWorkflow(contextID string) *workflow.Request {
	return &workflow.Request{
		ContextID: contextID,
		Steps: []workflow.Step{
			{Tool: "echo", Params: map[string]any{
				"contact": "alice@example.com",
				"phone":   "+1 415 555 0100",
			}},
		},
	}
}

// =============================================================================
// 🔧 工具 Schema
// =============================================================================

// ToolSchema 返回带可选预估 token 的 Schema
func ToolSchema(name string, estimate *int) types.ToolSchema {
	return types.ToolSchema{
		Name:            name,
		Description:     "Fixture tool: " + name,
		Parameters:      []byte(`{"type":"object"}`),
		EstimatedTokens: estimate,
	}
}
