// Package random provides Random implementations for secret key material.
package random

import (
	"crypto/rand"
	"math/big"
	"sync"

	"github.com/artpar/awsapigw/ports"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Real draws tokens from crypto/rand.
type Real struct{}

// Token returns n characters chosen uniformly from alphabet.
func (Real) Token(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

var _ ports.Random = Real{}

// Fake returns deterministic tokens for testing.
type Fake struct {
	mu     sync.Mutex
	calls  int
	values []string
}

// NewFake creates a fake that returns values in order, then derived tokens.
func NewFake(values ...string) *Fake {
	return &Fake{values: values}
}

// Token returns the next preset value, or a token derived from the call count.
func (f *Fake) Token(n int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	if i < len(f.values) {
		return f.values[i], nil
	}

	b := make([]byte, n)
	for j := range b {
		b[j] = alphabet[(i+j)%len(alphabet)]
	}
	return string(b), nil
}

var _ ports.Random = (*Fake)(nil)
