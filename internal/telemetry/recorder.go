package telemetry

import (
	"context"
	"time"

	"github.com/BaSui01/stepflow/workflow"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Meter returns a named meter from the SDK provider, or a noop meter when
// telemetry is disabled.
func (p *Providers) Meter(name string) metric.Meter {
	if p == nil || p.mp == nil {
		return metricnoop.NewMeterProvider().Meter(name)
	}
	return p.mp.Meter(name)
}

// =============================================================================
// 📈 OTel 工作流指标
// =============================================================================

// Recorder exports engine measurements as OTel instruments.
type Recorder struct {
	runs        metric.Int64Counter
	runLatency  metric.Float64Histogram
	tokens      metric.Int64Counter
	attempts    metric.Int64Counter
	invocations metric.Int64Counter
	recoveries  metric.Int64Counter
	rejections  metric.Int64Counter
}

var _ workflow.Recorder = (*Recorder)(nil)

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error
	if r.runs, err = meter.Int64Counter("stepflow.workflow.runs",
		metric.WithDescription("Workflow runs by outcome")); err != nil {
		return nil, err
	}
	if r.runLatency, err = meter.Float64Histogram("stepflow.workflow.duration",
		metric.WithUnit("s"), metric.WithDescription("Workflow run latency")); err != nil {
		return nil, err
	}
	if r.tokens, err = meter.Int64Counter("stepflow.tokens.used",
		metric.WithDescription("Tokens consumed by tool invocations")); err != nil {
		return nil, err
	}
	if r.attempts, err = meter.Int64Counter("stepflow.tool.attempts"); err != nil {
		return nil, err
	}
	if r.invocations, err = meter.Int64Counter("stepflow.tool.invocations"); err != nil {
		return nil, err
	}
	if r.recoveries, err = meter.Int64Counter("stepflow.recoveries"); err != nil {
		return nil, err
	}
	if r.rejections, err = meter.Int64Counter("stepflow.budget.rejections"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) RecordWorkflow(success bool, _ int, _ int, latency time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	r.runs.Add(ctx, 1, attrs)
	r.runLatency.Record(ctx, latency.Seconds(), attrs)
}

func (r *Recorder) RecordAttempt(tool, outcome string) {
	r.attempts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome)))
}

func (r *Recorder) RecordInvocation(tool string, success bool, tokens int, _ time.Duration) {
	ctx := context.Background()
	r.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success)))
	if tokens > 0 {
		r.tokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func (r *Recorder) RecordRecovery(kind string) {
	r.recoveries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) RecordBudgetRejection(tool string) {
	r.rejections.Add(context.Background(), 1, metric.WithAttributes(attribute.String("tool", tool)))
}
