package budget

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientBudget is returned when a reservation does not fit.
var ErrInsufficientBudget = errors.New("insufficient budget")

// UsageRecord is one recorded tool outcome.
type UsageRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	Success    bool      `json:"success"`
	TokensUsed int       `json:"tokens_used"`
	LatencyMs  int64     `json:"latency_ms"`
	Sanitized  bool      `json:"sanitized"`
	Error      string    `json:"error,omitempty"`
}

// Guard reads and deducts a context's token budget.
type Guard interface {
	GetTokenBudget(ctx context.Context, contextID string) (int, error)
	RecordToolResult(ctx context.Context, contextID string, record UsageRecord) error
}

// Reservation is a held slice of a context's budget.
type Reservation struct {
	ContextID string `json:"context_id"`
	Tokens    int    `json:"tokens"`
	id        uint64
}

// Reserver holds budget atomically ahead of a call.
type Reserver interface {
	Reserve(ctx context.Context, contextID string, tokens int) (Reservation, error)
	Release(ctx context.Context, r Reservation) error
}

// RejectionObserver is notified of calls refused for lack of budget.
type RejectionObserver interface {
	ObserveRejection(ctx context.Context, contextID string, record UsageRecord)
}

// Status is a snapshot of one context's account.
type Status struct {
	ContextID string `json:"context_id"`
	Allowance int    `json:"allowance"`
	Used      int    `json:"used"`
	Reserved  int    `json:"reserved"`
	Remaining int    `json:"remaining"`
	Calls     int    `json:"calls"`
	Failures  int    `json:"failures"`
}

// StatusReader is implemented by guards that can report account snapshots.
type StatusReader interface {
	Status(ctx context.Context, contextID string) (Status, error)
}

// AlertType 告警类型
type AlertType string

const (
	AlertThresholdReached AlertType = "threshold_reached"
	AlertExhausted        AlertType = "exhausted"
)

// Alert is raised when a context's usage crosses the configured threshold.
type Alert struct {
	Type      AlertType `json:"type"`
	ContextID string    `json:"context_id"`
	Threshold float64   `json:"threshold"`
	Current   float64   `json:"current"`
	Used      int       `json:"used"`
	Allowance int       `json:"allowance"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHandler handles budget alerts.
type AlertHandler func(alert Alert)
