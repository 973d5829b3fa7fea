package workflow

import (
	"fmt"
	"math"
	"strconv"
)

// SynthesizeInsights derives typed observations from completed outcomes.
// Order is fixed: token usage, latency, failures, then the cost estimate,
// which is always present.
func SynthesizeInsights(outcomes []StepOutcome, totalTokens int, totalLatencyMs int64, cfg InsightConfig) []Insight {
	insights := make([]Insight, 0, 4)
	total := len(outcomes)

	if total > 0 {
		avg := float64(totalTokens) / float64(total)
		if avg > cfg.HighTokenThreshold {
			insights = append(insights, Insight{
				Type:       InsightMetric,
				Title:      "High Token Usage",
				Value:      fmt.Sprintf("%d tokens/step", int64(math.Round(avg))),
				Impact:     ImpactHigh,
				Actionable: true,
			})
		}
	}

	if totalLatencyMs > cfg.LatencyTargetMs {
		insights = append(insights, Insight{
			Type:       InsightAnomaly,
			Title:      "Latency Exceeded Target",
			Value:      fmt.Sprintf("%dms", totalLatencyMs),
			Impact:     ImpactHigh,
			Actionable: true,
		})
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Result.Success {
			failed++
		}
	}
	if failed > 0 {
		impact := ImpactMedium
		if failed == total {
			impact = ImpactHigh
		}
		insights = append(insights, Insight{
			Type:       InsightAnomaly,
			Title:      "Workflow Failures",
			Value:      fmt.Sprintf("%d/%d steps failed", failed, total),
			Impact:     impact,
			Actionable: true,
		})
	}

	insights = append(insights, Insight{
		Type:       InsightCostDelta,
		Title:      "Estimated Cost",
		Value:      EstimateCost(totalTokens, cfg.PricePerThousandTokens),
		Impact:     ImpactLow,
		Actionable: false,
	})
	return insights
}

// EstimateCost formats totalTokens/1000*price to 4 decimals.
func EstimateCost(totalTokens int, pricePerThousand float64) string {
	return strconv.FormatFloat(float64(totalTokens)/1000*pricePerThousand, 'f', 4, 64)
}
