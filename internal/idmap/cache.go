package idmap

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL balances freshness against repeated name-service
// round trips for the same owner/owner-group string.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	id       uint32
	found    bool
	err      error
	cachedAt time.Time
}

// CachedResolver wraps a Resolver with TTL-based caching, using the
// double-checked-lock pattern: an RLock fast path for a live entry,
// then a Lock to populate on miss or expiry. Negative and error
// results are cached too, so a storm of opens against an unknown
// owner string doesn't storm the name service behind it.
type CachedResolver struct {
	inner Resolver
	ttl   time.Duration

	mu     sync.RWMutex
	owners map[string]cacheEntry
	groups map[string]cacheEntry
}

// NewCachedResolver wraps inner with a ttl-based cache.
func NewCachedResolver(inner Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner:  inner,
		ttl:    ttl,
		owners: make(map[string]cacheEntry),
		groups: make(map[string]cacheEntry),
	}
}

func (c *CachedResolver) lookup(table map[string]cacheEntry, mu *sync.RWMutex, name string) (cacheEntry, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := table[name]
	if !ok || time.Since(e.cachedAt) >= c.ttl {
		return cacheEntry{}, false
	}
	return e, true
}

// ResolveOwner implements Resolver.
func (c *CachedResolver) ResolveOwner(ctx context.Context, name string) (uint32, bool, error) {
	if e, ok := c.lookup(c.owners, &c.mu, name); ok {
		return e.id, e.found, e.err
	}
	c.mu.Lock()
	if e, ok := c.owners[name]; ok && time.Since(e.cachedAt) < c.ttl {
		c.mu.Unlock()
		return e.id, e.found, e.err
	}
	id, found, err := c.inner.ResolveOwner(ctx, name)
	c.owners[name] = cacheEntry{id: id, found: found, err: err, cachedAt: time.Now()}
	c.mu.Unlock()
	return id, found, err
}

// ResolveGroup implements Resolver.
func (c *CachedResolver) ResolveGroup(ctx context.Context, name string) (uint32, bool, error) {
	if e, ok := c.lookup(c.groups, &c.mu, name); ok {
		return e.id, e.found, e.err
	}
	c.mu.Lock()
	if e, ok := c.groups[name]; ok && time.Since(e.cachedAt) < c.ttl {
		c.mu.Unlock()
		return e.id, e.found, e.err
	}
	id, found, err := c.inner.ResolveGroup(ctx, name)
	c.groups[name] = cacheEntry{id: id, found: found, err: err, cachedAt: time.Now()}
	c.mu.Unlock()
	return id, found, err
}

// Invalidate drops both the owner and group entries for name.
func (c *CachedResolver) Invalidate(name string) {
	c.mu.Lock()
	delete(c.owners, name)
	delete(c.groups, name)
	c.mu.Unlock()
}
