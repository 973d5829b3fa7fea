// Package builtin contains the demo capabilities shipped with stepflow.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/stepflow/tools"
	"github.com/BaSui01/stepflow/types"
)

// ErrForcedFailure is returned by the fail tool.
var ErrForcedFailure = errors.New("forced failure")

// Registrations returns the builtin tool set.
func Registrations() []tools.Registration {
	return []tools.Registration{
		{
			Schema: types.ToolSchema{
				Name:            "echo",
				Description:     "Returns its parameters unchanged.",
				Parameters:      []byte(`{"type":"object"}`),
				EstimatedTokens: types.Tokens(50),
			},
			Capability: tools.CapabilityFunc(Echo),
		},
		{
			Schema: types.ToolSchema{
				Name:            "word_count",
				Description:     "Counts words in the text parameter.",
				Parameters:      []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
				EstimatedTokens: types.Tokens(20),
			},
			Capability: tools.CapabilityFunc(WordCount),
		},
		{
			Schema: types.ToolSchema{
				Name:        "sleep",
				Description: "Waits for duration_ms milliseconds or until the context is done.",
				Parameters:  []byte(`{"type":"object","properties":{"duration_ms":{"type":"integer","minimum":0}}}`),
			},
			Capability: tools.CapabilityFunc(Sleep),
		},
		{
			Schema: types.ToolSchema{
				Name:        "fail",
				Description: "Always fails with the message parameter.",
				Parameters:  []byte(`{"type":"object","properties":{"message":{"type":"string"}}}`),
			},
			Capability: tools.CapabilityFunc(Fail),
		},
	}
}

// Register adds every builtin to r.
func Register(r *tools.Registry) error {
	for _, reg := range Registrations() {
		if err := r.Register(reg); err != nil {
			return fmt.Errorf("register builtin %s: %w", reg.Schema.Name, err)
		}
	}
	return nil
}

func Echo(_ context.Context, params map[string]any) (any, error) {
	return params, nil
}

func WordCount(_ context.Context, params map[string]any) (any, error) {
	text, ok := params["text"].(string)
	if !ok {
		return nil, fmt.Errorf("word_count: text must be a string")
	}
	return map[string]any{"words": len(strings.Fields(text))}, nil
}

func Sleep(ctx context.Context, params map[string]any) (any, error) {
	ms, err := intParam(params, "duration_ms")
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return map[string]any{"slept_ms": ms}, nil
	}
}

func Fail(_ context.Context, params map[string]any) (any, error) {
	if msg, ok := params["message"].(string); ok && msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrForcedFailure, msg)
	}
	return nil, ErrForcedFailure
}

// intParam accepts the numeric shapes produced by JSON and YAML decoding.
func intParam(params map[string]any, key string) (int, error) {
	switch v := params[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
