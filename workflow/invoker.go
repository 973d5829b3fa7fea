package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/privacy"
	"github.com/BaSui01/stepflow/tokenizer"
	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// invoker runs the budget, privacy and execution gate around one tool call.
type invoker struct {
	tools     tools.Invoker
	guard     budget.Guard
	sanitizer privacy.Sanitizer
	estimator tokenizer.Estimator
	recorder  Recorder
	tracer    trace.Tracer
	now       func() time.Time
	logger    *zap.Logger
}

func (inv *invoker) invoke(ctx context.Context, contextID, toolName string, params map[string]any) ToolInvocationResult {
	start := inv.now()
	runID, _ := types.RunID(ctx)

	ctx, span := inv.tracer.Start(ctx, "workflow.invoke",
		trace.WithAttributes(attribute.String("tool.name", toolName)))
	defer span.End()

	fail := func(err *types.Error) ToolInvocationResult {
		res := ToolInvocationResult{
			Success:   false,
			Error:     err.Error(),
			ErrorCode: err.Code,
			LatencyMs: elapsedMs(start, inv.now()),
		}
		span.SetStatus(codes.Error, err.Message)
		inv.recorder.RecordInvocation(toolName, false, 0, inv.now().Sub(start))
		inv.logger.Debug("invocation failed",
			zap.String("tool", toolName),
			zap.String("code", string(err.Code)),
			zap.Error(err))
		return res
	}

	// 1. 读取剩余预算
	remaining, err := inv.guard.GetTokenBudget(ctx, contextID)
	if err != nil {
		inv.logger.Error("budget lookup failed", zap.String("context_id", contextID), zap.Error(err))
		return fail(types.NewError(types.ErrUnexpected, "budget lookup failed").WithCause(err).WithTool(toolName))
	}

	// 2. 预估成本检查；支持预留的 guard 改为原子预留
	schema, known := inv.tools.Schema(toolName)
	if known && schema.HasEstimate() {
		estimate := schema.Estimate()
		if reserver, ok := inv.guard.(budget.Reserver); ok {
			reservation, err := reserver.Reserve(ctx, contextID, estimate)
			if err != nil {
				if !errors.Is(err, budget.ErrInsufficientBudget) {
					return fail(types.NewError(types.ErrUnexpected, "budget reservation failed").WithCause(err).WithTool(toolName))
				}
				return inv.reject(ctx, contextID, runID, toolName, estimate, remaining, start, fail)
			}
			defer func() {
				if err := reserver.Release(context.WithoutCancel(ctx), reservation); err != nil {
					inv.logger.Warn("budget release failed", zap.String("context_id", contextID), zap.Error(err))
				}
			}()
		} else if estimate > remaining {
			return inv.reject(ctx, contextID, runID, toolName, estimate, remaining, start, fail)
		}
	}

	// 3. 解析能力
	capability, err := inv.tools.Load(toolName)
	if err != nil {
		code := types.ErrConfiguration
		if errors.Is(err, tools.ErrRateLimited) {
			code = types.ErrToolExecution
		}
		return fail(types.NewError(code, "tool resolution failed").WithCause(err).WithTool(toolName))
	}
	if capability == nil {
		return fail(types.NewError(types.ErrConfiguration, fmt.Sprintf("tool %q is not executable", toolName)).WithTool(toolName))
	}

	// 4. PII 检测与令牌化，始终作用于副本
	execParams, err := cloneParams(params)
	if err != nil {
		return fail(types.NewError(types.ErrConfiguration, "parameters are not serializable").WithCause(err).WithTool(toolName))
	}
	sanitized := false
	hasPII, err := inv.sanitizer.ContainsPII(ctx, execParams)
	if err != nil {
		return fail(types.NewError(types.ErrUnexpected, "privacy check failed").WithCause(err).WithTool(toolName))
	}
	if hasPII {
		execParams, err = inv.sanitizer.Tokenize(ctx, execParams)
		if err != nil {
			return fail(types.NewError(types.ErrUnexpected, "privacy tokenization failed").WithCause(err).WithTool(toolName))
		}
		sanitized = true
	}

	// 5. 执行
	payload, execErr := capability.Execute(ctx, execParams)

	// 6. token 估算
	tokens := 0
	if execErr == nil {
		tokens, err = inv.estimator.Estimate(payload)
		if err != nil {
			execErr = fmt.Errorf("estimate tokens: %w", err)
		}
	}

	// 7. 延迟
	end := inv.now()
	latency := elapsedMs(start, end)

	record := budget.UsageRecord{
		Timestamp:  end,
		RunID:      runID,
		ToolName:   toolName,
		Success:    execErr == nil,
		TokensUsed: tokens,
		LatencyMs:  latency,
		Sanitized:  sanitized,
	}
	if execErr != nil {
		record.TokensUsed = 0
		record.Error = execErr.Error()
	}

	// 8. 上报预算/审计
	if err := inv.guard.RecordToolResult(ctx, contextID, record); err != nil {
		inv.logger.Error("record tool result failed",
			zap.String("context_id", contextID),
			zap.String("tool", toolName),
			zap.Error(err))
	}

	// 9. 返回
	if execErr != nil {
		return fail(types.NewError(types.ErrToolExecution, "tool execution failed").WithCause(execErr).WithTool(toolName))
	}

	span.SetAttributes(
		attribute.Int("tool.tokens", tokens),
		attribute.Bool("tool.sanitized", sanitized))
	inv.recorder.RecordInvocation(toolName, true, tokens, end.Sub(start))
	return ToolInvocationResult{
		Success:    true,
		Data:       payload,
		TokensUsed: tokens,
		LatencyMs:  latency,
		Sanitized:  sanitized,
	}
}

func (inv *invoker) reject(
	ctx context.Context,
	contextID, runID, toolName string,
	estimate, remaining int,
	start time.Time,
	fail func(*types.Error) ToolInvocationResult,
) ToolInvocationResult {
	msg := fmt.Sprintf("insufficient budget: %s estimates %d tokens, %d remaining", toolName, estimate, remaining)
	inv.recorder.RecordBudgetRejection(toolName)
	if observer, ok := inv.guard.(budget.RejectionObserver); ok {
		observer.ObserveRejection(ctx, contextID, budget.UsageRecord{
			Timestamp: inv.now(),
			RunID:     runID,
			ToolName:  toolName,
			LatencyMs: elapsedMs(start, inv.now()),
			Error:     msg,
		})
	}
	inv.logger.Warn("invocation rejected by budget",
		zap.String("context_id", contextID),
		zap.String("tool", toolName),
		zap.Int("estimate", estimate),
		zap.Int("remaining", remaining))
	return fail(types.NewError(types.ErrBudgetExceeded, msg).WithTool(toolName))
}

// elapsedMs rounds up to whole milliseconds, with a floor of 1.
func elapsedMs(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	ms := int64((d + time.Millisecond - 1) / time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}

// cloneParams deep-copies params. Typed containers (structs, pointers, typed
// maps and slices) are converted to their JSON shape so every nested string
// is reachable by the sanitizer.
func cloneParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := cloneValue(params)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func cloneValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, err := cloneValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := cloneValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case []byte:
		return append([]byte(nil), val...), nil
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
	return v, nil
}
