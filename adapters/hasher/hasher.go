// Package hasher provides API token hashing.
package hasher

import (
	"strings"

	"github.com/artpar/awsapigw/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt uses bcrypt for hashing.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
// Out-of-range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Plain compares tokens verbatim (tests only).
type Plain struct{}

func (Plain) Hash(plaintext string) ([]byte, error) { return []byte(plaintext), nil }

func (Plain) Compare(hash []byte, plaintext string) bool { return string(hash) == plaintext }

var _ ports.Hasher = Plain{}

// TokenVerifier checks bearer tokens against one configured hash.
type TokenVerifier struct {
	hasher ports.Hasher
	hash   []byte
}

// NewTokenVerifier returns a verifier for hash. An empty hash disables auth.
func NewTokenVerifier(h ports.Hasher, hash string) *TokenVerifier {
	return &TokenVerifier{hasher: h, hash: []byte(strings.TrimSpace(hash))}
}

// Enabled reports whether a token hash is configured.
func (v *TokenVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify reports whether token is accepted. Always true when auth is disabled.
func (v *TokenVerifier) Verify(token string) bool {
	if !v.Enabled() {
		return true
	}
	if token == "" {
		return false
	}
	return v.hasher.Compare(v.hash, token)
}
