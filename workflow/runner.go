package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/stepflow/cache"
	"github.com/BaSui01/stepflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CachedResultMessage flags a result substituted from the cache fallback.
const CachedResultMessage = "cached result substituted due to failure"

// runState is the per-run data shared by every step of one workflow.
type runState struct {
	contextID string
	runID     string
	start     time.Time
	timeoutMs int64
}

// stepRunner drives the retry/fallback/cache state machine of one step.
type stepRunner struct {
	invoker        *invoker
	fallback       cache.Fallback
	defaultRetries int
	recorder       Recorder
	tracer         trace.Tracer
	now            func() time.Time
	logger         *zap.Logger
}

func (r *stepRunner) run(ctx context.Context, rs runState, index int, step Step) StepOutcome {
	retries := step.Retries
	if retries == 0 {
		retries = r.defaultRetries
	}
	limit := step.TimeoutMs
	if limit == 0 {
		limit = rs.timeoutMs
	}

	ctx, span := r.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.Int("step.index", index),
		attribute.String("step.tool", step.Tool),
		attribute.Int("step.retries", retries)))
	defer span.End()

	var result ToolInvocationResult
	attempts := 0
	for attempts < retries {
		attempts++
		var outcome string
		result, outcome = r.attempt(ctx, rs, step, limit)
		r.recorder.RecordAttempt(step.Tool, outcome)

		r.logger.Debug("attempt finished",
			zap.String("run_id", rs.runID),
			zap.Int("step", index),
			zap.String("tool", step.Tool),
			zap.Int("attempt", attempts),
			zap.String("outcome", outcome),
			zap.String("error", result.Error))

		if result.Success {
			break
		}
	}

	span.SetAttributes(attribute.Int("step.attempts", attempts), attribute.Bool("step.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	return StepOutcome{Step: step, Result: result, Attempts: attempts}
}

// attempt runs one iteration. A panic anywhere in the invocation, fallback or
// cache lookup ends the attempt with an unexpected-error result and skips the
// remaining recovery paths of that attempt.
func (r *stepRunner) attempt(ctx context.Context, rs runState, step Step, limitMs int64) (res ToolInvocationResult, outcome string) {
	// 1. 截止时间检查：以工作流开始时间为基准累计计算
	if err := ctx.Err(); err != nil {
		return timeoutResult(step.Tool, fmt.Sprintf("workflow context done: %v", err)), AttemptTimeout
	}
	if elapsed := r.now().Sub(rs.start); elapsed > time.Duration(limitMs)*time.Millisecond {
		return timeoutResult(step.Tool, fmt.Sprintf("deadline of %dms exceeded (elapsed %dms since workflow start)",
			limitMs, elapsed.Milliseconds())), AttemptTimeout
	}

	attemptStart := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("recovered panic during attempt",
				zap.String("run_id", rs.runID),
				zap.String("tool", step.Tool),
				zap.Any("panic", p))
			res = ToolInvocationResult{
				Success:   false,
				Error:     fmt.Sprintf("unexpected error: %v", p),
				ErrorCode: types.ErrUnexpected,
				LatencyMs: elapsedMs(attemptStart, r.now()),
				Tool:      step.Tool,
			}
			outcome = AttemptPanic
		}
	}()

	// 2. 主工具
	res = r.invoker.invoke(ctx, rs.contextID, step.Tool, step.Params)
	res.Tool = step.Tool

	// 3. 降级工具，只调用一次
	if !res.Success && step.Fallback != "" {
		res = r.invoker.invoke(ctx, rs.contextID, step.Fallback, step.Params)
		res.Tool = step.Fallback
		if res.Success {
			r.recorder.RecordRecovery(RecoveryFallback)
		}
	}

	// 4. 缓存兜底
	if !res.Success {
		data, hit, err := r.fallback.Lookup(ctx, step.Tool, step.Params)
		if err != nil {
			r.logger.Warn("cache fallback lookup failed", zap.String("tool", step.Tool), zap.Error(err))
		}
		if err == nil && hit {
			r.recorder.RecordRecovery(RecoveryCache)
			return ToolInvocationResult{
				Success:   true,
				Data:      data,
				Error:     CachedResultMessage,
				LatencyMs: res.LatencyMs,
				Tool:      step.Tool,
			}, AttemptSuccess
		}
		return res, AttemptFailure
	}

	r.remember(ctx, step, res)
	return res, AttemptSuccess
}

// remember offers a fresh success to the cache when it records results. The
// payload is keyed by the tool that produced it, so a fallback's output never
// stands in for the primary tool.
func (r *stepRunner) remember(ctx context.Context, step Step, res ToolInvocationResult) {
	rec, ok := r.fallback.(cache.Recorder)
	if !ok {
		return
	}
	tool := res.Tool
	if tool == "" {
		tool = step.Tool
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("recovered panic while storing result", zap.String("tool", tool), zap.Any("panic", p))
		}
	}()
	if err := rec.Store(ctx, tool, step.Params, res.Data); err != nil {
		r.logger.Warn("cache store failed", zap.String("tool", tool), zap.Error(err))
	}
}

func timeoutResult(tool, msg string) ToolInvocationResult {
	err := types.NewError(types.ErrTimeout, msg).WithTool(tool)
	return ToolInvocationResult{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: err.Code,
		Tool:      tool,
	}
}
