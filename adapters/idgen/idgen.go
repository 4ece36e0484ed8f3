// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/artpar/awsapigw/ports"
	"github.com/google/uuid"
)

// UUID generates UUID v4 strings.
type UUID struct{}

// New generates a new UUID v4.
func (UUID) New() string {
	return uuid.New().String()
}

var _ ports.IDGenerator = UUID{}

// KeyID generates 10-character lowercase IDs shaped like API Gateway key IDs.
type KeyID struct{}

// New generates a new key ID.
func (KeyID) New() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

var _ ports.IDGenerator = KeyID{}

// Sequential generates prefix1, prefix2, ... (for testing).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
