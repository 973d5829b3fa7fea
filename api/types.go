package api

import (
	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow"
)

// =============================================================================
// 工作流执行类型
// =============================================================================

// ExecuteWorkflowRequest 工作流执行请求
type ExecuteWorkflowRequest struct {
	// 预算上下文 ID
	ContextID string `json:"context_id" example:"ctx-42"`
	// 按顺序执行的步骤
	Steps []workflow.Step `json:"steps"`
	// 工作流默认截止时间（毫秒），0 表示使用服务端配置
	WorkflowTimeoutMs int64 `json:"workflow_timeout_ms,omitempty" example:"1500"`
	// 用于请求跟踪的跟踪 ID
	TraceID string `json:"trace_id,omitempty" example:"trace-123"`
	// 多租户的租户 ID
	TenantID string `json:"tenant_id,omitempty" example:"tenant-1"`
	// 用户身份
	UserID string `json:"user_id,omitempty" example:"user-1"`
}

// WorkflowRequest 转换为执行器请求
func (r *ExecuteWorkflowRequest) WorkflowRequest() *workflow.Request {
	return &workflow.Request{
		ContextID:         r.ContextID,
		Steps:             r.Steps,
		WorkflowTimeoutMs: r.WorkflowTimeoutMs,
	}
}

// ExecuteWorkflowResponse 工作流执行结果，与 workflow.Result 同构
type ExecuteWorkflowResponse = workflow.Result

// =============================================================================
// 工具类型
// =============================================================================

// ToolInfo 已注册工具的公开描述
type ToolInfo = types.ToolSchema

// ToolListResponse 工具列表响应
type ToolListResponse struct {
	Tools []ToolInfo `json:"tools"`
	Total int        `json:"total"`
}

// =============================================================================
// 预算类型
// =============================================================================

// BudgetResponse 预算快照
type BudgetResponse = budget.Status

// BudgetRemainingResponse 仅能读取剩余额度的预算后端返回的快照
type BudgetRemainingResponse struct {
	ContextID string `json:"context_id"`
	Remaining int    `json:"remaining"`
}
