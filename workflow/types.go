package workflow

import (
	"github.com/BaSui01/stepflow/types"
)

// Step is one unit of workflow work. The executor never mutates a step.
type Step struct {
	Tool     string         `json:"tool" yaml:"tool"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Fallback string         `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	// Retries is the maximum number of attempts; 0 means the configured default.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`
	// TimeoutMs overrides the workflow deadline for this step; 0 means none.
	TimeoutMs int64 `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// ToolInvocationResult is the outcome of one invocation or attempt.
type ToolInvocationResult struct {
	Success    bool            `json:"success"`
	Data       any             `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorCode  types.ErrorCode `json:"error_code,omitempty"`
	TokensUsed int             `json:"tokens_used"`
	LatencyMs  int64           `json:"latency_ms"`
	Sanitized  bool            `json:"sanitized"`
	// Tool is the capability that actually produced this result.
	Tool string `json:"tool,omitempty"`
}

// StepOutcome is created once a step's retry loop concludes.
type StepOutcome struct {
	Step     Step                 `json:"step"`
	Result   ToolInvocationResult `json:"result"`
	Attempts int                  `json:"attempts"`
}

// InsightType classifies an insight.
type InsightType string

const (
	InsightMetric    InsightType = "metric"
	InsightAnomaly   InsightType = "anomaly"
	InsightCostDelta InsightType = "cost_delta"
)

// Impact grades an insight.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Insight is a structured observation about a completed workflow.
type Insight struct {
	Type       InsightType `json:"type"`
	Title      string      `json:"title"`
	Value      string      `json:"value"`
	Impact     Impact      `json:"impact"`
	Actionable bool        `json:"actionable"`
}

// Request is the caller-facing input of ExecuteWorkflow.
type Request struct {
	ContextID string `json:"context_id" yaml:"context_id"`
	Steps     []Step `json:"steps" yaml:"steps"`
	// WorkflowTimeoutMs is the default deadline; 0 means the configured default.
	WorkflowTimeoutMs int64 `json:"workflow_timeout_ms,omitempty" yaml:"workflow_timeout_ms,omitempty"`
}

// Result is the summarized outcome of a workflow run.
type Result struct {
	RunID          string        `json:"run_id"`
	Success        bool          `json:"success"`
	Steps          []StepOutcome `json:"steps"`
	TotalTokens    int           `json:"total_tokens"`
	TotalLatencyMs int64         `json:"total_latency_ms"`
	Insights       []Insight     `json:"insights"`
	Narrative      string        `json:"narrative"`
}

// FailedSteps returns the outcomes whose final result failed.
func (r *Result) FailedSteps() []StepOutcome {
	var failed []StepOutcome
	for _, o := range r.Steps {
		if !o.Result.Success {
			failed = append(failed, o)
		}
	}
	return failed
}
