package privacy

import (
	"regexp"
	"sync"
)

var tokenPattern = regexp.MustCompile(`\[PII_[A-Z0-9_]+_[0-9a-f]{8}\]`)

// Vault keeps the token to original value mapping in memory.
type Vault struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{entries: make(map[string]string)}
}

func (v *Vault) put(token, value string) {
	v.mu.Lock()
	v.entries[token] = value
	v.mu.Unlock()
}

// Lookup returns the original value of a token.
func (v *Vault) Lookup(token string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.entries[token]
	return value, ok
}

// Len returns the number of stored tokens.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Detokenize replaces every known token in s with its original value.
// Unknown tokens are left as is.
func (v *Vault) Detokenize(s string) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		if value, ok := v.Lookup(tok); ok {
			return value
		}
		return tok
	})
}
