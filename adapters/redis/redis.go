// Package redis provides the key state cache and the create lock on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "awsapigw:"

// Options configures the Redis connection.
type Options struct {
	Host     string
	Port     int
	DB       int
	Password string
	Timeout  time.Duration

	// PoolSize caps open connections. Zero keeps the driver default.
	PoolSize int

	// Persistent keeps idle connections open between calls.
	// Otherwise idle connections are closed after Timeout.
	Persistent bool
}

// Addr returns host:port with defaults applied.
func (o Options) Addr() string {
	host := o.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := o.Port
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (o Options) client() *goredis.Options {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	opts := &goredis.Options{
		Addr:         o.Addr(),
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     o.PoolSize,
	}
	if !o.Persistent {
		opts.ConnMaxIdleTime = timeout
	}
	return opts
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, o Options) (*goredis.Client, error) {
	client := goredis.NewClient(o.client())
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", o.Addr(), err)
	}
	return client, nil
}

// -----------------------------------------------------------------------------
// Cache
// -----------------------------------------------------------------------------

// setIfGenerationScript stores ARGV[2] at KEYS[2] for ARGV[3] ms when the
// generation at KEYS[1] (missing = 0) equals ARGV[1].
const setIfGenerationScript = `
local cur = redis.call("GET", KEYS[1]) or "0"
if cur ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`

// Cache stores the live key view of each service as JSON, next to a
// generation counter that Invalidate increments.
// Generation counters do not expire, so a fill can never match a reset counter.
type Cache struct {
	client goredis.UniversalClient
	prefix string
	setIf  *goredis.Script
}

// NewCache creates a cache. An empty prefix uses DefaultPrefix.
func NewCache(client goredis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix, setIf: goredis.NewScript(setIfGenerationScript)}
}

// Key returns the cache key of a service.
func (c *Cache) Key(serviceID int64) string {
	return c.prefix + "key:" + strconv.FormatInt(serviceID, 10)
}

// GenerationKey returns the key of a service's generation counter.
func (c *Cache) GenerationKey(serviceID int64) string {
	return c.prefix + "gen:" + strconv.FormatInt(serviceID, 10)
}

// Get returns the cached key. A missing entry is a miss, not an error.
func (c *Cache) Get(ctx context.Context, serviceID int64) (provision.ExternalKey, bool, error) {
	data, err := c.client.Get(ctx, c.Key(serviceID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return provision.ExternalKey{}, false, nil
	}
	if err != nil {
		return provision.ExternalKey{}, false, fmt.Errorf("get cached key: %w", err)
	}

	var k provision.ExternalKey
	if err := json.Unmarshal(data, &k); err != nil {
		return provision.ExternalKey{}, false, fmt.Errorf("decode cached key: %w", err)
	}
	return k, true, nil
}

// Generation returns the invalidation counter of a service. Missing is 0.
func (c *Cache) Generation(ctx context.Context, serviceID int64) (uint64, error) {
	gen, err := c.client.Get(ctx, c.GenerationKey(serviceID)).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache generation: %w", err)
	}
	return gen, nil
}

// Set caches k for ttl if the generation is still gen. A non-positive ttl
// stores nothing.
func (c *Cache) Set(ctx context.Context, serviceID int64, k provision.ExternalKey, gen uint64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	data, err := json.Marshal(k)
	if err != nil {
		return false, fmt.Errorf("encode cached key: %w", err)
	}

	keys := []string{c.GenerationKey(serviceID), c.Key(serviceID)}
	stored, err := c.setIf.Run(ctx, c.client, keys,
		strconv.FormatUint(gen, 10), data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set cached key: %w", err)
	}
	return stored == 1, nil
}

// Invalidate deletes the cached entry and increments the generation.
func (c *Cache) Invalidate(ctx context.Context, serviceID int64) error {
	_, err := c.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Incr(ctx, c.GenerationKey(serviceID))
		p.Del(ctx, c.Key(serviceID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached key: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.KeyStateCache = (*Cache)(nil)

// -----------------------------------------------------------------------------
// Lock
// -----------------------------------------------------------------------------

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock claims key creation for a service across processes.
type Lock struct {
	client goredis.UniversalClient
	prefix string
	script *goredis.Script
}

// NewLock creates a lock. An empty prefix uses DefaultPrefix.
func NewLock(client goredis.UniversalClient, prefix string) *Lock {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Lock{client: client, prefix: prefix, script: goredis.NewScript(releaseScript)}
}

// Key returns the lock key of a service.
func (l *Lock) Key(serviceID int64) string {
	return l.prefix + "lock:create:" + strconv.FormatInt(serviceID, 10)
}

// Acquire sets the claim if it is free. The release only deletes the claim it set.
func (l *Lock) Acquire(ctx context.Context, serviceID int64, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}

	key := l.Key(serviceID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire create lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := l.script.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("release create lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Ensure interface compliance.
var _ ports.CreateLock = (*Lock)(nil)
