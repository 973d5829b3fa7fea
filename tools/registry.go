package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrToolNotFound   = errors.New("tool not found")
	ErrToolNameEmpty  = errors.New("tool name is empty")
	ErrNilCapability  = errors.New("tool capability is nil")
	ErrRateLimited    = errors.New("tool rate limit exceeded")
	ErrDuplicateTool  = errors.New("tool already registered")
	ErrSchemaMismatch = errors.New("tool name mismatch")
)

// Capability is the executable side of a tool.
type Capability interface {
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// CapabilityFunc adapts a plain function to Capability.
type CapabilityFunc func(ctx context.Context, params map[string]any) (any, error)

// Execute calls f.
func (f CapabilityFunc) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// RateLimitConfig defines a per-tool token bucket.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls per window (also the burst)
	Window   time.Duration // Time window
}

// Registration binds a tool name to its schema and capability.
type Registration struct {
	Schema     types.ToolSchema
	Capability Capability
	RateLimit  *RateLimitConfig
}

// Invoker resolves tools by name.
type Invoker interface {
	Schema(name string) (types.ToolSchema, bool)
	Load(name string) (Capability, error)
}

// Registry is the closed, concurrency-safe tool registry.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Registration
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries:  make(map[string]Registration),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. The schema name is the registry key.
func (r *Registry) Register(reg Registration) error {
	name := reg.Schema.Name
	if name == "" {
		return ErrToolNameEmpty
	}
	if reg.Capability == nil {
		return fmt.Errorf("%w: %q", ErrNilCapability, name)
	}
	if reg.Schema.EstimatedTokens != nil && *reg.Schema.EstimatedTokens < 0 {
		return fmt.Errorf("tool %q: estimated tokens must be non-negative", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.entries[name] = reg

	// 初始化速率限制器
	if rl := reg.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		every := rl.Window / time.Duration(rl.MaxCalls)
		r.limiters[name] = rate.NewLimiter(rate.Every(every), rl.MaxCalls)
	}

	r.logger.Info("tool registered",
		zap.String("name", name),
		zap.Int("estimated_tokens", reg.Schema.Estimate()),
		zap.Bool("rate_limited", reg.RateLimit != nil))
	return nil
}

// MustRegister registers a tool and panics on error. Use at startup only.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	delete(r.entries, name)
	delete(r.limiters, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

// Schema returns the declared schema of a tool.
func (r *Registry) Schema(name string) (types.ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[name]
	if !ok {
		return types.ToolSchema{}, false
	}
	return reg.Schema, true
}

// Load resolves a tool's capability, consuming one rate-limit token.
func (r *Registry) Load(name string) (Capability, error) {
	if name == "" {
		return nil, ErrToolNameEmpty
	}

	r.mu.RLock()
	reg, ok := r.entries[name]
	limiter := r.limiters[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if limiter != nil && !limiter.Allow() {
		r.logger.Warn("tool rate limited", zap.String("name", name))
		return nil, fmt.Errorf("%w: %q", ErrRateLimited, name)
	}
	return reg.Capability, nil
}

// List returns all schemas sorted by name.
func (r *Registry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.entries))
	for _, reg := range r.entries {
		schemas = append(schemas, reg.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}
