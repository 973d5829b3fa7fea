package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Record is the persisted form of an Entry.
type Record struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp  time.Time `gorm:"not null;index:idx_audit_ts" json:"timestamp"`
	EventType  string    `gorm:"size:32;not null;index:idx_audit_event" json:"event_type"`
	RunID      string    `gorm:"size:36;index:idx_audit_run" json:"run_id"`
	ContextID  string    `gorm:"size:128;not null;index:idx_audit_ctx" json:"context_id"`
	ToolName   string    `gorm:"size:128;index:idx_audit_tool" json:"tool_name"`
	Success    bool      `gorm:"default:false" json:"success"`
	TokensUsed int       `gorm:"default:0" json:"tokens_used"`
	LatencyMs  int64     `gorm:"default:0" json:"latency_ms"`
	Sanitized  bool      `gorm:"default:false" json:"sanitized"`
	Error      string    `gorm:"type:text" json:"error"`
	Metadata   string    `gorm:"type:text" json:"metadata"` // JSON 编码的 map[string]string
}

// TableName 指定表名
func (Record) TableName() string {
	return "sf_audit_entries"
}

// GormStore persists audit entries through gorm.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates the store and migrates its table.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "audit_gorm_store")),
	}, nil
}

func (s *GormStore) Write(ctx context.Context, entry *Entry) error {
	rec := Record{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp,
		EventType:  string(entry.EventType),
		RunID:      entry.RunID,
		ContextID:  entry.ContextID,
		ToolName:   entry.ToolName,
		Success:    entry.Success,
		TokensUsed: entry.TokensUsed,
		LatencyMs:  entry.LatencyMs,
		Sanitized:  entry.Sanitized,
		Error:      entry.Error,
	}
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		rec.Metadata = string(b)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *GormStore) Query(ctx context.Context, filter *Filter) ([]*Entry, error) {
	q := s.db.WithContext(ctx).Model(&Record{}).Order("timestamp ASC")
	if filter != nil {
		if filter.ContextID != "" {
			q = q.Where("context_id = ?", filter.ContextID)
		}
		if filter.RunID != "" {
			q = q.Where("run_id = ?", filter.RunID)
		}
		if filter.ToolName != "" {
			q = q.Where("tool_name = ?", filter.ToolName)
		}
		if filter.EventType != "" {
			q = q.Where("event_type = ?", string(filter.EventType))
		}
		if filter.StartTime != nil {
			q = q.Where("timestamp >= ?", *filter.StartTime)
		}
		if filter.EndTime != nil {
			q = q.Where("timestamp <= ?", *filter.EndTime)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}

	var records []Record
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}

	entries := make([]*Entry, 0, len(records))
	for _, rec := range records {
		e := &Entry{
			ID:         rec.ID,
			Timestamp:  rec.Timestamp,
			EventType:  EventType(rec.EventType),
			RunID:      rec.RunID,
			ContextID:  rec.ContextID,
			ToolName:   rec.ToolName,
			Success:    rec.Success,
			TokensUsed: rec.TokensUsed,
			LatencyMs:  rec.LatencyMs,
			Sanitized:  rec.Sanitized,
			Error:      rec.Error,
		}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &e.Metadata); err != nil {
				s.logger.Warn("corrupt audit metadata", zap.String("entry_id", rec.ID), zap.Error(err))
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close is a no-op; the gorm pool is owned by the caller.
func (s *GormStore) Close() error {
	return nil
}
