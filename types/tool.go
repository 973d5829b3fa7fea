package types

import "encoding/json"

// ToolSchema declares a tool's interface and its cost.
type ToolSchema struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty" yaml:"-"`
	Version     string          `json:"version,omitempty" yaml:"version,omitempty"`

	// EstimatedTokens is the declared upper bound of tokens one call consumes.
	// nil means the tool declares no estimate and is never rejected up front.
	EstimatedTokens *int `json:"estimated_tokens,omitempty" yaml:"estimated_tokens,omitempty"`
}

// HasEstimate reports whether the schema declares a cost estimate.
func (s ToolSchema) HasEstimate() bool {
	return s.EstimatedTokens != nil
}

// Estimate returns the declared estimate, or 0 when none is declared.
func (s ToolSchema) Estimate() int {
	if s.EstimatedTokens == nil {
		return 0
	}
	return *s.EstimatedTokens
}

// Tokens is a helper for building schemas with an estimate inline.
func Tokens(n int) *int {
	return &n
}
