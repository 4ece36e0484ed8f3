// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/awsapigw/domain/provision"
)

// Sentinel errors returned by adapters.
var (
	// ErrNotFound is returned by RecordStore.Get when no record exists.
	ErrNotFound = errors.New("record not found")

	// ErrKeyNotFound is returned by KeyService when the external key does not exist.
	ErrKeyNotFound = errors.New("api key not found")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Random generates secret material.
type Random interface {
	// Token returns n random characters from [A-Za-z0-9].
	Token(n int) (string, error)
}

// Hasher provides token hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// RecordStore persists the local mirror of provisioned keys, keyed by service ID.
type RecordStore interface {
	// Get retrieves the record of a service. Returns ErrNotFound if absent.
	Get(ctx context.Context, serviceID int64) (provision.Record, error)

	// Exists reports whether a record exists for the service.
	Exists(ctx context.Context, serviceID int64) (bool, error)

	// InsertIfAbsent stores r unless a record for r.ServiceID already exists.
	// Returns false if another insert won.
	InsertIfAbsent(ctx context.Context, r provision.Record) (bool, error)

	// UpdateTimestamps overwrites the mirrored timestamps.
	// Returns false if no row was affected.
	UpdateTimestamps(ctx context.Context, serviceID int64, createdAt, updatedAt time.Time) (bool, error)

	// Delete removes the record. Returns false if no row was affected.
	Delete(ctx context.Context, serviceID int64) (bool, error)

	// List returns records ordered by service ID.
	List(ctx context.Context, limit, offset int) ([]provision.Record, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// KeyService manages API keys in the API gateway.
// Every call may fail independently; no atomicity across calls is assumed.
type KeyService interface {
	// CreateKey creates an enabled key with the given name.
	CreateKey(ctx context.Context, name string) (provision.ExternalKey, error)

	// GetKey retrieves a key including its value. Returns ErrKeyNotFound if absent.
	GetKey(ctx context.Context, id string) (provision.ExternalKey, error)

	// UpdateKeyEnabled sets the enabled flag and returns the key as stored.
	UpdateKeyEnabled(ctx context.Context, id string, enabled bool) (provision.ExternalKey, error)

	// DeleteKey removes a key. Returns ErrKeyNotFound if it was already absent.
	DeleteKey(ctx context.Context, id string) error

	// AttachUsagePlan associates a key with a usage plan.
	AttachUsagePlan(ctx context.Context, keyID, planID string) error
}

// KeyServiceFactory builds a KeyService for the endpoint supplied by a caller.
type KeyServiceFactory interface {
	KeyService(ctx context.Context, ep provision.Endpoint) (KeyService, error)
}

// -----------------------------------------------------------------------------
// Cache Ports
// -----------------------------------------------------------------------------

// KeyStateCache caches the live external view of a service's key.
// Entries expire after their TTL and are invalidated on every lifecycle mutation.
// Each service has a generation that Invalidate advances; a fill only lands
// when the generation it was read under is still current.
type KeyStateCache interface {
	// Get returns the cached key. ok is false on a miss.
	Get(ctx context.Context, serviceID int64) (k provision.ExternalKey, ok bool, err error)

	// Generation returns the current generation of a service's entry.
	Generation(ctx context.Context, serviceID int64) (uint64, error)

	// Set caches k for ttl if the generation still equals gen.
	// stored is false when an invalidation happened in between.
	Set(ctx context.Context, serviceID int64, k provision.ExternalKey, gen uint64, ttl time.Duration) (stored bool, err error)

	// Invalidate drops any cached entry and advances the generation.
	Invalidate(ctx context.Context, serviceID int64) error
}

// CreateLock claims the right to create a key for a service.
type CreateLock interface {
	// Acquire tries to claim serviceID for ttl. ok is false if another claim is held.
	// release must be called once the create finished.
	Acquire(ctx context.Context, serviceID int64, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// LifecycleMetrics records lifecycle outcomes.
type LifecycleMetrics interface {
	ObserveOperation(op, outcome string, d time.Duration)
	ObserveKeyCall(call, outcome string)
	ObservePlanAssociation(ok bool)
	ObserveOrphanedKey(reason string)
	ObserveDescribeSource(source string)
}
