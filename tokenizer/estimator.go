package tokenizer

import (
	"encoding/json"
	"fmt"
)

// Estimator maps a capability payload to the number of tokens it consumed.
type Estimator interface {
	Estimate(payload any) (int, error)
	Name() string
}

// Serialize returns the canonical serialization of a payload.
// Strings and raw bytes are used verbatim, everything else is JSON encoded.
func Serialize(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	return b, nil
}

// ByteEstimator estimates ceil(len(serialized)/4).
type ByteEstimator struct{}

// NewByteEstimator creates the default estimator.
func NewByteEstimator() ByteEstimator {
	return ByteEstimator{}
}

func (ByteEstimator) Estimate(payload any) (int, error) {
	b, err := Serialize(payload)
	if err != nil {
		return 0, err
	}
	return CeilDiv4(len(b)), nil
}

func (ByteEstimator) Name() string {
	return "bytes"
}

// CeilDiv4 returns ceil(n/4) for n >= 0.
func CeilDiv4(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// New builds an estimator by kind ("bytes" or "tiktoken").
func New(kind, encoding string) (Estimator, error) {
	switch kind {
	case "", "bytes":
		return NewByteEstimator(), nil
	case "tiktoken":
		return NewTiktokenEstimator(encoding), nil
	default:
		return nil, fmt.Errorf("unknown estimator %q", kind)
	}
}
