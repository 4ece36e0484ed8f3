// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/awsapigw/ports"
)

// UTC reports the current wall time in UTC, truncated to the second.
// Record timestamps are stored at second precision.
type UTC struct{}

// Now returns the current time.
func (UTC) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

var _ ports.Clock = UTC{}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

var _ ports.Clock = (*Fake)(nil)
