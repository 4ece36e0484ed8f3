package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/awsapigw/adapters/clock"
	"github.com/artpar/awsapigw/ports"
)

// CreateLock is an in-process implementation of ports.CreateLock.
type CreateLock struct {
	clock ports.Clock

	mu     sync.Mutex
	claims map[int64]claim
	seq    uint64
}

type claim struct {
	token     uint64
	expiresAt time.Time
}

// NewCreateLock creates a lock whose claims expire by c. A nil clock uses wall time.
func NewCreateLock(c ports.Clock) *CreateLock {
	if c == nil {
		c = clock.UTC{}
	}
	return &CreateLock{clock: c, claims: make(map[int64]claim)}
}

// Acquire claims serviceID for ttl unless an unexpired claim is held.
func (l *CreateLock) Acquire(ctx context.Context, serviceID int64, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if c, ok := l.claims[serviceID]; ok && now.Before(c.expiresAt) {
		return nil, false, nil
	}

	l.seq++
	token := l.seq
	l.claims[serviceID] = claim{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if c, ok := l.claims[serviceID]; ok && c.token == token {
			delete(l.claims, serviceID)
		}
		return nil
	}
	return release, true, nil
}

// Ensure interface compliance.
var _ ports.CreateLock = (*CreateLock)(nil)
