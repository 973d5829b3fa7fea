package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateNarrative(t *testing.T) {
	tests := []struct {
		name      string
		outcomes  []StepOutcome
		insights  []Insight
		tokens    int
		latencyMs int64
		want      string
	}{
		{
			name: "empty workflow",
			want: "0/0 steps executed successfully. Total latency: 0ms, total tokens: 0. No action required.",
		},
		{
			name:      "all succeeded",
			outcomes:  []StepOutcome{outcome("a", true, 5), outcome("b", true, 7)},
			insights:  []Insight{{Title: "Estimated Cost", Impact: ImpactLow}},
			tokens:    12,
			latencyMs: 40,
			want:      "2/2 steps executed successfully. Total latency: 40ms, total tokens: 12. No action required.",
		},
		{
			name:     "failed tools listed once in order",
			outcomes: []StepOutcome{outcome("b", false, 0), outcome("a", false, 0), outcome("b", false, 0), outcome("c", true, 1)},
			insights: []Insight{
				{Title: "Latency Exceeded Target", Impact: ImpactHigh},
				{Title: "Workflow Failures", Impact: ImpactMedium},
				{Title: "Estimated Cost", Impact: ImpactLow},
			},
			tokens:    1,
			latencyMs: 2000,
			want: "1/4 steps executed successfully. Total latency: 2000ms, total tokens: 1. " +
				"High-impact insights: Latency Exceeded Target. " +
				"Recommended action: review failed steps (b, a).",
		},
		{
			name:     "several high-impact insights",
			outcomes: []StepOutcome{outcome("x", false, 0)},
			insights: []Insight{
				{Title: "High Token Usage", Impact: ImpactHigh},
				{Title: "Workflow Failures", Impact: ImpactHigh},
			},
			latencyMs: 3,
			want: "0/1 steps executed successfully. Total latency: 3ms, total tokens: 0. " +
				"High-impact insights: High Token Usage, Workflow Failures. " +
				"Recommended action: review failed steps (x).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateNarrative(tt.outcomes, tt.insights, tt.tokens, tt.latencyMs))
		})
	}
}
