package resolver

import (
	"sync"
	"time"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
)

// CacheEntry pairs a cached value with the monotonic time it was last
// accessed, for sliding-expiration TTL (spec.md §3).
type CacheEntry[T any] struct {
	Value      T
	LastAccess time.Time
}

// nowFn is overridable by tests so sliding-TTL behavior (P2) can be
// exercised without sleeping.
var nowFn = time.Now

// ProjectCache is a TTL-cached project-file-path -> *project.Project table
// (spec.md §4.2). Guarded by a mutex since this is a parallel-goroutine
// runtime (spec.md §5).
type ProjectCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry[*project.Project]
	ttl     time.Duration
}

// NewProjectCache constructs an empty cache with the given TTL.
func NewProjectCache(ttl time.Duration) *ProjectCache {
	return &ProjectCache{entries: make(map[string]CacheEntry[*project.Project]), ttl: ttl}
}

// Get returns the cached project for path if present and fresh, refreshing
// its LastAccess on a hit (sliding expiration). ok is false on a miss or a
// stale entry - callers are expected to reload and call Put.
func (c *ProjectCache) Get(path string) (p *project.Project, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.entries[path]
	if !found || nowFn().Sub(entry.LastAccess) > c.ttl {
		return nil, false
	}
	entry.LastAccess = nowFn()
	c.entries[path] = entry
	return entry.Value, true
}

// Put stores p under path with a fresh LastAccess timestamp.
func (c *ProjectCache) Put(path string, p *project.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = CacheEntry[*project.Project]{Value: p, LastAccess: nowFn()}
}

// Flush empties the cache entirely (spec.md §4.5, the cache-flush retry
// path, and invariant I3).
func (c *ProjectCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry[*project.Project])
}

// AddressCache is a TTL-cached ServiceKey -> upstream-origin table
// (spec.md §4.3). Only non-empty addresses are ever stored: a negative
// engine lookup never populates the cache, so a container that starts
// later is discovered on the very next request (spec.md P3).
type AddressCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry[string]
	ttl     time.Duration
}

// NewAddressCache constructs an empty cache with the given TTL.
func NewAddressCache(ttl time.Duration) *AddressCache {
	return &AddressCache{entries: make(map[string]CacheEntry[string]), ttl: ttl}
}

// Get returns the cached upstream origin for key if present and fresh,
// refreshing LastAccess on a hit.
func (c *AddressCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.entries[key]
	if !found || nowFn().Sub(entry.LastAccess) > c.ttl {
		return "", false
	}
	entry.LastAccess = nowFn()
	c.entries[key] = entry
	return entry.Value, true
}

// Put stores a non-empty address. A call with an empty address is a no-op
// (spec.md P3: a nil/absent upstream is never cached).
func (c *AddressCache) Put(key, address string) {
	if address == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry[string]{Value: address, LastAccess: nowFn()}
}

// Flush empties the cache entirely.
func (c *AddressCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry[string])
}
