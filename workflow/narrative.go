package workflow

import (
	"fmt"
	"strings"
)

// GenerateNarrative builds the deterministic human-readable summary.
func GenerateNarrative(outcomes []StepOutcome, insights []Insight, totalTokens int, totalLatencyMs int64) string {
	succeeded := 0
	var failedTools []string
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.Result.Success {
			succeeded++
			continue
		}
		if !seen[o.Step.Tool] {
			seen[o.Step.Tool] = true
			failedTools = append(failedTools, o.Step.Tool)
		}
	}

	sentences := []string{
		fmt.Sprintf("%d/%d steps executed successfully.", succeeded, len(outcomes)),
		fmt.Sprintf("Total latency: %dms, total tokens: %d.", totalLatencyMs, totalTokens),
	}

	var high []string
	for _, in := range insights {
		if in.Impact == ImpactHigh {
			high = append(high, in.Title)
		}
	}
	if len(high) > 0 {
		sentences = append(sentences, fmt.Sprintf("High-impact insights: %s.", strings.Join(high, ", ")))
	}

	if len(failedTools) > 0 {
		sentences = append(sentences, fmt.Sprintf("Recommended action: review failed steps (%s).", strings.Join(failedTools, ", ")))
	} else {
		sentences = append(sentences, "No action required.")
	}
	return strings.Join(sentences, " ")
}
