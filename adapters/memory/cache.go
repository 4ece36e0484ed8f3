package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/awsapigw/adapters/clock"
	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

type cacheEntry struct {
	key       provision.ExternalKey
	expiresAt time.Time
}

// Cache is an in-memory implementation of ports.KeyStateCache.
type Cache struct {
	clock ports.Clock

	mu          sync.Mutex
	entries     map[int64]cacheEntry
	generations map[int64]uint64
}

// NewCache creates a cache that expires entries by c. A nil clock uses wall time.
func NewCache(c ports.Clock) *Cache {
	if c == nil {
		c = clock.UTC{}
	}
	return &Cache{
		clock:       c,
		entries:     make(map[int64]cacheEntry),
		generations: make(map[int64]uint64),
	}
}

// Get returns the cached key of a service.
func (c *Cache) Get(ctx context.Context, serviceID int64) (provision.ExternalKey, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[serviceID]
	if !ok {
		return provision.ExternalKey{}, false, nil
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, serviceID)
		return provision.ExternalKey{}, false, nil
	}
	return e.key, true, nil
}

// Generation returns the invalidation count of a service.
func (c *Cache) Generation(ctx context.Context, serviceID int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[serviceID], nil
}

// Set caches k for ttl unless the service was invalidated after gen was read.
// A non-positive ttl stores nothing.
func (c *Cache) Set(ctx context.Context, serviceID int64, k provision.ExternalKey, gen uint64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[serviceID] != gen {
		return false, nil
	}
	c.entries[serviceID] = cacheEntry{key: k, expiresAt: c.clock.Now().Add(ttl)}
	return true, nil
}

// Invalidate drops the cached key of a service and advances its generation.
func (c *Cache) Invalidate(ctx context.Context, serviceID int64) error {
	c.mu.Lock()
	delete(c.entries, serviceID)
	c.generations[serviceID]++
	c.mu.Unlock()
	return nil
}

// Ensure interface compliance.
var _ ports.KeyStateCache = (*Cache)(nil)
