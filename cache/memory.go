package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryConfig configures the in-process cache.
type MemoryConfig struct {
	MaxEntries       int                      `json:"max_entries"`
	DefaultTTL       time.Duration            `json:"default_ttl"`
	ToolTTLOverrides map[string]time.Duration `json:"tool_ttl_overrides"`
	ExcludedTools    []string                 `json:"excluded_tools"` // Tools to never cache
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxEntries: 10000,
		DefaultTTL: 15 * time.Minute,
	}
}

type memoryEntry struct {
	tool      string
	value     []byte
	createdAt time.Time
	expiresAt time.Time
	hitCount  int
}

// Memory is an in-process Fallback and Recorder.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	config   MemoryConfig
	excluded map[string]struct{}
	stats    Stats
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemory creates an in-process cache.
func NewMemory(config MemoryConfig, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMemoryConfig().MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultMemoryConfig().DefaultTTL
	}
	return &Memory{
		entries:  make(map[string]*memoryEntry),
		config:   config,
		excluded: excludedSet(config.ExcludedTools),
		now:      time.Now,
		logger:   logger.With(zap.String("component", "tool_cache")),
	}
}

func (m *Memory) Lookup(_ context.Context, tool string, params map[string]any) (any, bool, error) {
	if _, skip := m.excluded[tool]; skip {
		return nil, false, nil
	}
	key, err := Key(tool, params)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		m.stats.Misses++
		m.mu.Unlock()
		return nil, false, nil
	}
	entry.hitCount++
	m.stats.Hits++
	hits, value := entry.hitCount, entry.value
	m.mu.Unlock()

	m.logger.Debug("cache hit", zap.String("tool", tool), zap.Int("hit_count", hits))

	data, err := decode(value)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Memory) Store(_ context.Context, tool string, params map[string]any, data any) error {
	if _, skip := m.excluded[tool]; skip {
		return nil
	}
	key, err := Key(tool, params)
	if err != nil {
		return err
	}
	value, err := encode(data)
	if err != nil {
		return err
	}

	ttl := m.config.DefaultTTL
	if override, ok := m.config.ToolTTLOverrides[tool]; ok {
		ttl = override
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.config.MaxEntries {
		m.evictOldest()
	}
	m.entries[key] = &memoryEntry{
		tool:      tool,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	m.stats.Stores++
	return nil
}

// InvalidateTool removes all cache entries for a tool.
func (m *Memory) InvalidateTool(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		if entry.tool == tool {
			delete(m.entries, key)
		}
	}
}

// Clear removes all cache entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
}

// Stats returns cache statistics.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = len(m.entries)
	return s
}

func (m *Memory) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range m.entries {
		if oldestKey == "" || entry.createdAt.Before(oldest) {
			oldestKey = key
			oldest = entry.createdAt
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
		m.stats.Evictions++
	}
}
