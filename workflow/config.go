package workflow

import (
	"fmt"
	"time"
)

// InsightConfig holds the thresholds used by SynthesizeInsights.
type InsightConfig struct {
	HighTokenThreshold     float64 `json:"high_token_threshold" yaml:"high_token_threshold"`
	LatencyTargetMs        int64   `json:"latency_target_ms" yaml:"latency_target_ms"`
	PricePerThousandTokens float64 `json:"price_per_thousand_tokens" yaml:"price_per_thousand_tokens"`
}

// DefaultInsightConfig returns the reference thresholds.
func DefaultInsightConfig() InsightConfig {
	return InsightConfig{
		HighTokenThreshold:     500,
		LatencyTargetMs:        1500,
		PricePerThousandTokens: 0.002,
	}
}

// Config configures the executor.
type Config struct {
	WorkflowTimeout time.Duration `json:"workflow_timeout" yaml:"workflow_timeout"`
	DefaultRetries  int           `json:"default_retries" yaml:"default_retries"`
	Insights        InsightConfig `json:"insights" yaml:"insights"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		WorkflowTimeout: 1500 * time.Millisecond,
		DefaultRetries:  3,
		Insights:        DefaultInsightConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WorkflowTimeout <= 0 {
		return fmt.Errorf("workflow timeout must be positive")
	}
	if c.DefaultRetries < 1 {
		return fmt.Errorf("default retries must be at least 1")
	}
	if c.Insights.PricePerThousandTokens < 0 {
		return fmt.Errorf("price per thousand tokens must be non-negative")
	}
	return nil
}
