package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenEstimator counts BPE tokens of the canonical serialization.
type TiktokenEstimator struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenEstimator creates a tiktoken-backed estimator. The encoding
// is loaded lazily on first use (it may download BPE data).
func NewTiktokenEstimator(encoding string) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenEstimator{encoding: encoding}
}

func (t *TiktokenEstimator) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenEstimator) Estimate(payload any) (int, error) {
	b, err := Serialize(payload)
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(string(b), nil, nil)), nil
}

func (t *TiktokenEstimator) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
