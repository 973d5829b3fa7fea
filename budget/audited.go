package budget

import (
	"context"
	"strconv"

	"github.com/BaSui01/stepflow/audit"
)

// AuditedGuard writes every recorded outcome to an audit logger.
type AuditedGuard struct {
	inner Guard
	audit *audit.Logger
}

type auditedReserverGuard struct {
	*AuditedGuard
	reserver Reserver
}

// NewAuditedGuard decorates inner. The result implements Reserver and
// StatusReader whenever inner does.
func NewAuditedGuard(inner Guard, logger *audit.Logger) Guard {
	g := &AuditedGuard{inner: inner, audit: logger}
	if r, ok := inner.(Reserver); ok {
		return &auditedReserverGuard{AuditedGuard: g, reserver: r}
	}
	return g
}

func (g *AuditedGuard) GetTokenBudget(ctx context.Context, contextID string) (int, error) {
	return g.inner.GetTokenBudget(ctx, contextID)
}

func (g *AuditedGuard) RecordToolResult(ctx context.Context, contextID string, record UsageRecord) error {
	if err := g.inner.RecordToolResult(ctx, contextID, record); err != nil {
		return err
	}
	g.audit.LogAsync(entryFor(audit.EventToolResult, contextID, record))
	return nil
}

func (g *AuditedGuard) ObserveRejection(_ context.Context, contextID string, record UsageRecord) {
	g.audit.LogAsync(entryFor(audit.EventBudgetRejected, contextID, record))
}

func (g *AuditedGuard) Status(ctx context.Context, contextID string) (Status, error) {
	if sr, ok := g.inner.(StatusReader); ok {
		return sr.Status(ctx, contextID)
	}
	remaining, err := g.inner.GetTokenBudget(ctx, contextID)
	if err != nil {
		return Status{}, err
	}
	return Status{ContextID: contextID, Remaining: remaining}, nil
}

func (g *auditedReserverGuard) Reserve(ctx context.Context, contextID string, tokens int) (Reservation, error) {
	return g.reserver.Reserve(ctx, contextID, tokens)
}

func (g *auditedReserverGuard) Release(ctx context.Context, r Reservation) error {
	return g.reserver.Release(ctx, r)
}

func entryFor(event audit.EventType, contextID string, record UsageRecord) *audit.Entry {
	return &audit.Entry{
		Timestamp:  record.Timestamp,
		EventType:  event,
		RunID:      record.RunID,
		ContextID:  contextID,
		ToolName:   record.ToolName,
		Success:    record.Success,
		TokensUsed: record.TokensUsed,
		LatencyMs:  record.LatencyMs,
		Sanitized:  record.Sanitized,
		Error:      record.Error,
	}
}

// AlertAuditor returns an AlertHandler that writes alerts to the audit log.
func AlertAuditor(logger *audit.Logger) AlertHandler {
	return func(alert Alert) {
		logger.LogAsync(&audit.Entry{
			Timestamp:  alert.Timestamp,
			EventType:  audit.EventBudgetAlert,
			ContextID:  alert.ContextID,
			TokensUsed: alert.Used,
			Metadata: map[string]string{
				"type":      string(alert.Type),
				"allowance": strconv.Itoa(alert.Allowance),
			},
		})
	}
}
