package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryConfig configures MemoryGuard.
type MemoryConfig struct {
	DefaultBudget  int     `json:"default_budget"`
	AlertThreshold float64 `json:"alert_threshold"` // 0.0-1.0, alert when usage exceeds this
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DefaultBudget:  10000,
		AlertThreshold: 0.8,
	}
}

type account struct {
	allowance    int
	used         int
	reserved     int
	calls        int
	failures     int
	alerted      bool
	exhausted    bool
	reservations map[uint64]int
}

func (a *account) remaining() int {
	return a.allowance - a.used - a.reserved
}

// MemoryGuard keeps per-context accounts in process memory.
type MemoryGuard struct {
	mu            sync.Mutex
	config        MemoryConfig
	accounts      map[string]*account
	nextID        uint64
	alertHandlers []AlertHandler
	logger        *zap.Logger
}

// NewMemoryGuard creates an in-memory budget guard.
func NewMemoryGuard(config MemoryConfig, logger *zap.Logger) *MemoryGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryGuard{
		config:   config,
		accounts: make(map[string]*account),
		logger:   logger.With(zap.String("component", "budget_memory")),
	}
}

// OnAlert registers an alert handler. Handlers run on their own goroutine.
func (g *MemoryGuard) OnAlert(handler AlertHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alertHandlers = append(g.alertHandlers, handler)
}

// accountLocked 返回账户，未见过的上下文以默认额度开户
func (g *MemoryGuard) accountLocked(contextID string) *account {
	a, ok := g.accounts[contextID]
	if !ok {
		a = &account{allowance: g.config.DefaultBudget, reservations: make(map[uint64]int)}
		g.accounts[contextID] = a
	}
	return a
}

// SetBudget sets a context's allowance and clears its usage.
func (g *MemoryGuard) SetBudget(contextID string, allowance int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.accounts[contextID] = &account{allowance: allowance, reservations: make(map[uint64]int)}
	g.logger.Info("budget set", zap.String("context_id", contextID), zap.Int("allowance", allowance))
}

// Reset clears the usage and outstanding reservations of one context, or of
// all contexts when contextID is empty.
func (g *MemoryGuard) Reset(contextID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if contextID == "" {
		g.accounts = make(map[string]*account)
		return
	}
	if a, ok := g.accounts[contextID]; ok {
		a.used, a.calls, a.failures = 0, 0, 0
		a.alerted, a.exhausted = false, false
		// 未释放的预留一并作废，之后的 Release 为空操作
		a.reserved = 0
		a.reservations = make(map[uint64]int)
	}
}

func (g *MemoryGuard) GetTokenBudget(ctx context.Context, contextID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accountLocked(contextID).remaining(), nil
}

func (g *MemoryGuard) RecordToolResult(ctx context.Context, contextID string, record UsageRecord) error {
	if record.TokensUsed < 0 {
		return fmt.Errorf("tokens used must be non-negative, got %d", record.TokensUsed)
	}

	g.mu.Lock()
	a := g.accountLocked(contextID)
	a.used += record.TokensUsed
	a.calls++
	if !record.Success {
		a.failures++
	}
	alerts := g.checkAlertsLocked(contextID, a)
	handlers := g.alertHandlers
	g.mu.Unlock()

	g.logger.Debug("usage recorded",
		zap.String("context_id", contextID),
		zap.String("tool", record.ToolName),
		zap.Int("tokens", record.TokensUsed),
		zap.Bool("success", record.Success))

	for _, alert := range alerts {
		g.fireAlert(alert, handlers)
	}
	return nil
}

func (g *MemoryGuard) Reserve(ctx context.Context, contextID string, tokens int) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	if tokens < 0 {
		return Reservation{}, fmt.Errorf("reservation must be non-negative, got %d", tokens)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	a := g.accountLocked(contextID)
	if remaining := a.remaining(); tokens > remaining {
		return Reservation{}, fmt.Errorf("%w: need %d, remaining %d", ErrInsufficientBudget, tokens, remaining)
	}
	g.nextID++
	a.reserved += tokens
	a.reservations[g.nextID] = tokens
	return Reservation{ContextID: contextID, Tokens: tokens, id: g.nextID}, nil
}

// Release returns a reservation. Releasing twice is a no-op.
func (g *MemoryGuard) Release(_ context.Context, r Reservation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.accounts[r.ContextID]
	if !ok {
		return nil
	}
	if tokens, held := a.reservations[r.id]; held {
		a.reserved -= tokens
		delete(a.reservations, r.id)
	}
	return nil
}

// Status 只读，未见过的上下文不会开户
func (g *MemoryGuard) Status(_ context.Context, contextID string) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.accounts[contextID]
	if !ok {
		a = &account{allowance: g.config.DefaultBudget}
	}
	return Status{
		ContextID: contextID,
		Allowance: a.allowance,
		Used:      a.used,
		Reserved:  a.reserved,
		Remaining: a.remaining(),
		Calls:     a.calls,
		Failures:  a.failures,
	}, nil
}

func (g *MemoryGuard) checkAlertsLocked(contextID string, a *account) []Alert {
	if a.allowance <= 0 {
		return nil
	}
	var alerts []Alert
	util := float64(a.used) / float64(a.allowance)
	threshold := g.config.AlertThreshold

	if threshold > 0 && util >= threshold && !a.alerted {
		a.alerted = true
		alerts = append(alerts, Alert{
			Type: AlertThresholdReached, ContextID: contextID, Threshold: threshold,
			Current: util, Used: a.used, Allowance: a.allowance, Timestamp: time.Now(),
		})
	}
	if util >= 1 && !a.exhausted {
		a.exhausted = true
		alerts = append(alerts, Alert{
			Type: AlertExhausted, ContextID: contextID, Threshold: 1,
			Current: util, Used: a.used, Allowance: a.allowance, Timestamp: time.Now(),
		})
	}
	return alerts
}

func (g *MemoryGuard) fireAlert(alert Alert, handlers []AlertHandler) {
	g.logger.Warn("budget alert",
		zap.String("type", string(alert.Type)),
		zap.String("context_id", alert.ContextID),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("current", alert.Current))

	for _, handler := range handlers {
		go handler(alert)
	}
}
