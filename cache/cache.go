package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// KeyPrefix is prepended to every cache key.
const KeyPrefix = "stepflow:toolcache:"

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// Fallback supplies a previously obtained result for a failed step.
// ok is false on a miss; an error is treated as a miss by callers.
type Fallback interface {
	Lookup(ctx context.Context, tool string, params map[string]any) (data any, ok bool, err error)
}

// Recorder stores successful results so later failures can be recovered.
type Recorder interface {
	Store(ctx context.Context, tool string, params map[string]any, data any) error
}

// Stats tracks cache performance.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Stores    int64 `json:"stores"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// Key builds the cache key of a tool call. json.Marshal sorts map keys,
// so equal params always produce the same key.
func Key(tool string, params map[string]any) (string, error) {
	args, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("build cache key for %s: %w", tool, err)
	}
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(args)
	return KeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// encode serializes data for storage; decode returns an independent copy.
func encode(data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return b, nil
}

func decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return v, nil
}

func excludedSet(tools []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		set[t] = struct{}{}
	}
	return set
}

// Noop always misses.
type Noop struct{}

func (Noop) Lookup(context.Context, string, map[string]any) (any, bool, error) {
	return nil, false, nil
}
