package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventToolResult     EventType = "tool_result"
	EventBudgetRejected EventType = "budget_rejected"
	EventBudgetAlert    EventType = "budget_alert"
)

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("audit logger is closed")

// Entry represents a single audit log entry.
type Entry struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	RunID      string            `json:"run_id,omitempty"`
	ContextID  string            `json:"context_id"`
	ToolName   string            `json:"tool_name,omitempty"`
	Success    bool              `json:"success"`
	TokensUsed int               `json:"tokens_used"`
	LatencyMs  int64             `json:"latency_ms"`
	Sanitized  bool              `json:"sanitized"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Filter defines filters for querying audit entries.
type Filter struct {
	ContextID string     `json:"context_id,omitempty"`
	RunID     string     `json:"run_id,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	EventType EventType  `json:"event_type,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

func (f *Filter) matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.ContextID != "" && e.ContextID != f.ContextID {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.ToolName != "" && e.ToolName != f.ToolName {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Backend defines the interface for audit storage backends.
type Backend interface {
	Write(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter *Filter) ([]*Entry, error)
	Close() error
}

// Config configures the audit logger.
type Config struct {
	Backends       []Backend
	AsyncQueueSize int
	AsyncWorkers   int
	IDGenerator    func() string
}

// Logger fans entries out to its backends.
type Logger struct {
	backends    []Backend
	asyncQueue  chan *Entry
	wg          sync.WaitGroup
	logger      *zap.Logger
	closed      bool
	closeMu     sync.RWMutex
	idGenerator func() string
}

// NewLogger creates a new audit logger and starts its async workers.
func NewLogger(cfg Config, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = 10000
	}
	if cfg.AsyncWorkers <= 0 {
		cfg.AsyncWorkers = 4
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uuid.NewString
	}

	l := &Logger{
		backends:    cfg.Backends,
		asyncQueue:  make(chan *Entry, cfg.AsyncQueueSize),
		logger:      logger.With(zap.String("component", "audit_logger")),
		idGenerator: cfg.IDGenerator,
	}

	for i := 0; i < cfg.AsyncWorkers; i++ {
		l.wg.Add(1)
		go l.asyncWorker()
	}
	return l
}

func (l *Logger) asyncWorker() {
	defer l.wg.Done()

	for entry := range l.asyncQueue {
		if err := l.writeToBackends(context.Background(), entry); err != nil {
			l.logger.Error("failed to write audit entry",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
	}
}

func (l *Logger) writeToBackends(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, backend := range l.backends {
		if err := backend.Write(ctx, entry); err != nil {
			l.logger.Error("backend write failed", zap.String("entry_id", entry.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Logger) prepare(entry *Entry) {
	if entry.ID == "" {
		entry.ID = l.idGenerator()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
}

// Log records an audit entry synchronously.
func (l *Logger) Log(ctx context.Context, entry *Entry) error {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	l.prepare(entry)
	return l.writeToBackends(ctx, entry)
}

// LogAsync queues an entry. Entries are dropped when the queue is full.
func (l *Logger) LogAsync(entry *Entry) {
	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		l.logger.Warn("audit logger is closed, dropping entry")
		return
	}

	l.prepare(entry)
	select {
	case l.asyncQueue <- entry:
	default:
		l.logger.Warn("audit queue full, dropping entry", zap.String("entry_id", entry.ID))
	}
}

// Query retrieves audit entries from the first backend.
func (l *Logger) Query(ctx context.Context, filter *Filter) ([]*Entry, error) {
	if len(l.backends) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}
	return l.backends[0].Query(ctx, filter)
}

// Close flushes pending entries and closes every backend.
func (l *Logger) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.asyncQueue)
	l.closeMu.Unlock()

	l.wg.Wait()

	var errs []error
	for _, backend := range l.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.logger.Info("audit logger closed")
	return errors.Join(errs...)
}

// MemoryBackend stores audit entries in memory.
type MemoryBackend struct {
	entries []*Entry
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new memory audit backend.
func NewMemoryBackend(maxSize int) *MemoryBackend {
	if maxSize <= 0 {
		maxSize = 100000
	}
	return &MemoryBackend{maxSize: maxSize}
}

func (m *MemoryBackend) Write(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 满容量时淘汰最旧的 10%
	if len(m.entries) >= m.maxSize {
		removeCount := m.maxSize / 10
		if removeCount < 1 {
			removeCount = 1
		}
		m.entries = m.entries[removeCount:]
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, filter *Filter) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Entry, 0)
	for _, entry := range m.entries {
		if filter.matches(entry) {
			results = append(results, entry)
		}
	}
	return paginate(results, filter), nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func paginate(results []*Entry, filter *Filter) []*Entry {
	if filter == nil {
		return results
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return []*Entry{}
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}
