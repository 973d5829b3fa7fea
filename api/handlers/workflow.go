package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/stepflow/api"
	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow"
	"go.uber.org/zap"
)

// =============================================================================
// ⚙️ 工作流 Handler
// =============================================================================

// WorkflowExecutor runs a workflow request.
type WorkflowExecutor interface {
	ExecuteWorkflow(ctx context.Context, req *workflow.Request) (*workflow.Result, error)
}

// ToolLister lists registered tool schemas.
type ToolLister interface {
	List() []types.ToolSchema
}

// WorkflowHandler 工作流、工具与预算端点
type WorkflowHandler struct {
	executor WorkflowExecutor
	tools    ToolLister
	guard    budget.Guard
	logger   *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(executor WorkflowExecutor, tools ToolLister, guard budget.Guard, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		executor: executor,
		tools:    tools,
		guard:    guard,
		logger:   logger.With(zap.String("handler", "workflow")),
	}
}

// HandleExecute 处理 POST /api/v1/workflows/execute
//
// 步骤失败不影响 HTTP 状态：只要请求本身合法就返回 200，
// 成败由结果中的 success 字段表达。
func (h *WorkflowHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ExecuteWorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx := r.Context()
	if req.TraceID != "" {
		ctx = types.WithTraceID(ctx, req.TraceID)
	}
	// 认证中间件写入的身份优先于请求体
	if _, ok := types.TenantID(ctx); !ok && req.TenantID != "" {
		ctx = types.WithTenantID(ctx, req.TenantID)
	}
	if _, ok := types.UserID(ctx); !ok && req.UserID != "" {
		ctx = types.WithUserID(ctx, req.UserID)
	}

	result, err := h.executor.ExecuteWorkflow(ctx, req.WorkflowRequest())
	if err != nil {
		if apiErr, ok := types.AsError(err); ok {
			WriteError(w, r, apiErr, h.logger)
			return
		}
		WriteError(w, r, types.NewError(types.ErrInternalError, "workflow execution failed").WithCause(err), h.logger)
		return
	}

	h.logger.Debug("workflow served",
		zap.String("run_id", result.RunID),
		zap.Bool("success", result.Success),
		zap.Int("total_tokens", result.TotalTokens))
	WriteSuccess(w, r, result)
}

// HandleListTools 处理 GET /api/v1/tools
func (h *WorkflowHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	list := h.tools.List()
	WriteSuccess(w, r, api.ToolListResponse{Tools: list, Total: len(list)})
}

// HandleBudget 处理 GET /api/v1/budgets/{context_id}
func (h *WorkflowHandler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context_id")
	if contextID == "" {
		WriteError(w, r, types.NewInvalidRequestError("context_id is required"), h.logger)
		return
	}

	if sr, ok := h.guard.(budget.StatusReader); ok {
		status, err := sr.Status(r.Context(), contextID)
		if err != nil {
			h.writeBudgetError(w, r, err)
			return
		}
		WriteSuccess(w, r, status)
		return
	}

	remaining, err := h.guard.GetTokenBudget(r.Context(), contextID)
	if err != nil {
		h.writeBudgetError(w, r, err)
		return
	}
	WriteSuccess(w, r, api.BudgetRemainingResponse{ContextID: contextID, Remaining: remaining})
}

func (h *WorkflowHandler) writeBudgetError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, types.NewError(types.ErrInternalError, "budget backend unavailable").
		WithCause(err).
		WithRetryable(true), h.logger)
}
