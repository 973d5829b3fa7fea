package workflow

import (
	"context"
	"time"

	"github.com/BaSui01/stepflow/budget"
	"github.com/BaSui01/stepflow/cache"
	"github.com/BaSui01/stepflow/privacy"
	"github.com/BaSui01/stepflow/tokenizer"
	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "stepflow/workflow"

// Executor runs workflows. It holds no per-run state and is safe for
// concurrent use.
type Executor struct {
	tools     tools.Invoker
	guard     budget.Guard
	sanitizer privacy.Sanitizer
	fallback  cache.Fallback
	estimator tokenizer.Estimator
	recorder  Recorder
	config    Config
	tracer    trace.Tracer
	now       func() time.Time
	newRunID  func() string
	logger    *zap.Logger

	runner *stepRunner
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSanitizer sets the privacy sanitizer. Default: privacy.Noop.
func WithSanitizer(s privacy.Sanitizer) ExecutorOption {
	return func(e *Executor) { e.sanitizer = s }
}

// WithCacheFallback sets the cache fallback. Default: cache.Noop.
func WithCacheFallback(f cache.Fallback) ExecutorOption {
	return func(e *Executor) { e.fallback = f }
}

// WithEstimator sets the token estimator. Default: tokenizer.ByteEstimator.
func WithEstimator(est tokenizer.Estimator) ExecutorOption {
	return func(e *Executor) { e.estimator = est }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// WithConfig replaces the default configuration.
func WithConfig(c Config) ExecutorOption {
	return func(e *Executor) { e.config = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithTracer sets the tracer. Default: the global OTel tracer provider.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithRunIDGenerator overrides run ID generation.
func WithRunIDGenerator(gen func() string) ExecutorOption {
	return func(e *Executor) { e.newRunID = gen }
}

// NewExecutor creates a workflow executor.
func NewExecutor(toolInvoker tools.Invoker, guard budget.Guard, opts ...ExecutorOption) *Executor {
	e := &Executor{
		tools:     toolInvoker,
		guard:     guard,
		sanitizer: privacy.Noop{},
		fallback:  cache.Noop{},
		estimator: tokenizer.NewByteEstimator(),
		recorder:  nopRecorder{},
		config:    DefaultConfig(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "workflow_executor"))
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}
	if e.config.DefaultRetries < 1 {
		e.config.DefaultRetries = DefaultConfig().DefaultRetries
	}
	if e.config.WorkflowTimeout <= 0 {
		e.config.WorkflowTimeout = DefaultConfig().WorkflowTimeout
	}

	inv := &invoker{
		tools:     e.tools,
		guard:     e.guard,
		sanitizer: e.sanitizer,
		estimator: e.estimator,
		recorder:  e.recorder,
		tracer:    e.tracer,
		now:       e.now,
		logger:    e.logger,
	}
	e.runner = &stepRunner{
		invoker:        inv,
		fallback:       e.fallback,
		defaultRetries: e.config.DefaultRetries,
		recorder:       e.recorder,
		tracer:         e.tracer,
		now:            e.now,
		logger:         e.logger,
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.config
}

// ExecuteWorkflow runs every step in order and summarizes the outcome.
// The error is non-nil only for a malformed request, detected before any
// step runs; step-level failures are reported inside the Result.
func (e *Executor) ExecuteWorkflow(ctx context.Context, req *Request) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	timeoutMs := req.WorkflowTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = e.config.WorkflowTimeout.Milliseconds()
	}

	runID := e.newRunID()
	ctx = types.WithRunID(ctx, runID)
	ctx = types.WithContextID(ctx, req.ContextID)

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.run_id", runID),
		attribute.String("workflow.context_id", req.ContextID),
		attribute.Int("workflow.steps", len(req.Steps))))
	defer span.End()

	e.logger.Info("workflow started",
		zap.String("run_id", runID),
		zap.String("context_id", req.ContextID),
		zap.Int("steps", len(req.Steps)),
		zap.Int64("timeout_ms", timeoutMs))

	start := e.now()
	rs := runState{contextID: req.ContextID, runID: runID, start: start, timeoutMs: timeoutMs}

	outcomes := make([]StepOutcome, 0, len(req.Steps))
	for i, step := range req.Steps {
		outcomes = append(outcomes, e.runner.run(ctx, rs, i, step))
	}

	end := e.now()
	elapsed := end.Sub(start)
	var totalLatency int64
	if len(outcomes) > 0 {
		totalLatency = elapsedMs(start, end)
	}

	totalTokens := 0
	success := true
	for _, o := range outcomes {
		totalTokens += o.Result.TokensUsed
		if !o.Result.Success {
			success = false
		}
	}

	insights := SynthesizeInsights(outcomes, totalTokens, totalLatency, e.config.Insights)
	narrative := GenerateNarrative(outcomes, insights, totalTokens, totalLatency)

	span.SetAttributes(
		attribute.Bool("workflow.success", success),
		attribute.Int("workflow.total_tokens", totalTokens),
		attribute.Int64("workflow.total_latency_ms", totalLatency))
	if !success {
		span.SetStatus(codes.Error, "one or more steps failed")
	}
	e.recorder.RecordWorkflow(success, len(outcomes), totalTokens, elapsed)

	e.logger.Info("workflow completed",
		zap.String("run_id", runID),
		zap.Bool("success", success),
		zap.Int("total_tokens", totalTokens),
		zap.Int64("total_latency_ms", totalLatency))

	return &Result{
		RunID:          runID,
		Success:        success,
		Steps:          outcomes,
		TotalTokens:    totalTokens,
		TotalLatencyMs: totalLatency,
		Insights:       insights,
		Narrative:      narrative,
	}, nil
}

// ValidateRequest rejects malformed requests.
func ValidateRequest(req *Request) error {
	if req == nil {
		return types.NewInvalidRequestError("request is nil")
	}
	if req.WorkflowTimeoutMs < 0 {
		return types.NewInvalidRequestError("workflow_timeout_ms must be non-negative, got %d", req.WorkflowTimeoutMs)
	}
	for i, step := range req.Steps {
		if step.Tool == "" {
			return types.NewInvalidRequestError("step %d: tool is required", i)
		}
		if step.Retries < 0 {
			return types.NewInvalidRequestError("step %d: retries must be non-negative, got %d", i, step.Retries)
		}
		if step.TimeoutMs < 0 {
			return types.NewInvalidRequestError("step %d: timeout_ms must be non-negative, got %d", i, step.TimeoutMs)
		}
	}
	return nil
}
