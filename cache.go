package accesskit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/accesskit/logger"
)

// DefaultResolutionTTL bounds how stale a cached grant decision may be after
// a role/permission change, absent an explicit invalidation.
const DefaultResolutionTTL = 5 * time.Minute

type cacheEntry struct {
	results   []TabAccessResult
	expiresAt time.Time
}

type flight struct {
	done    chan struct{}
	results []TabAccessResult
	err     error
}

// ResolutionCache memoizes batch results per principal and entity instance.
// It is an explicit, passed-by-reference object so tests can construct
// independent instances; there is no package-level singleton.
//
// Concurrent requests for the same key share the single outstanding
// resolution instead of issuing duplicate batches. A batch whose context is
// cancelled before completion is discarded, never written into the cache.
type ResolutionCache struct {
	resolver *AccessResolver
	ttl      time.Duration
	log      logger.Logger

	generation atomic.Uint64

	mu      sync.Mutex
	entries map[string]*cacheEntry
	flights map[string]*flight

	// optional high-throughput backend; entries is unused when set
	backend *ristretto.Cache
}

// CacheOption configures a ResolutionCache.
type CacheOption func(*ResolutionCache) error

// WithTTL overrides the default five-minute entry lifetime.
func WithTTL(d time.Duration) CacheOption {
	return func(c *ResolutionCache) error {
		if d <= 0 {
			return configErrorf("cache TTL must be positive, got %s", d)
		}
		c.ttl = d
		return nil
	}
}

// WithCacheLogger installs a structured logger for cache events.
func WithCacheLogger(l logger.Logger) CacheOption {
	return func(c *ResolutionCache) error {
		c.log = l
		return nil
	}
}

// WithRistretto swaps the map backend for a ristretto cache sized by the
// given counters/cost/buffer parameters.
func WithRistretto(numCounters, maxCost, bufferItems int64) CacheOption {
	return func(c *ResolutionCache) error {
		rc, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: numCounters,
			MaxCost:     maxCost,
			BufferItems: bufferItems,
		})
		if err != nil {
			return fmt.Errorf("configure ristretto backend: %w", err)
		}
		c.backend = rc
		return nil
	}
}

func NewResolutionCache(resolver *AccessResolver, opts ...CacheOption) (*ResolutionCache, error) {
	c := &ResolutionCache{
		resolver: resolver,
		ttl:      DefaultResolutionTTL,
		log:      logger.NewNullLogger(),
		entries:  make(map[string]*cacheEntry),
		flights:  make(map[string]*flight),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ResolveBatch returns the cached batch result for the entity instance, or
// runs one underlying resolution shared by all concurrent callers of the
// same key.
func (c *ResolutionCache) ResolveBatch(ctx context.Context, principalID, entityType, entityID string) ([]TabAccessResult, error) {
	tabs, err := c.resolver.Tabs().TabsFor(entityType)
	if err != nil {
		return nil, err
	}
	key := c.key(principalID, entityType, entityID, tabs)

	c.mu.Lock()
	if results, ok := c.lookupLocked(key); ok {
		c.mu.Unlock()
		return results, nil
	}
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.results, f.err
		case <-ctx.Done():
			// the caller's context moved on; the in-flight result belongs
			// to whoever still wants it
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	results, err := c.resolver.ResolveTabs(ctx, principalID, entityType, entityID, tabs)
	f.results, f.err = results, err

	c.mu.Lock()
	delete(c.flights, key)
	if err == nil && ctx.Err() == nil {
		c.storeLocked(key, results)
	}
	c.mu.Unlock()
	close(f.done)

	if err == nil && ctx.Err() != nil {
		// resolved, but the requesting context is gone: discard
		return nil, ctx.Err()
	}
	return results, err
}

// Invalidate drops the cached entry for one entity instance.
func (c *ResolutionCache) Invalidate(principalID, entityType, entityID string) {
	tabs, err := c.resolver.Tabs().TabsFor(entityType)
	if err != nil {
		return
	}
	key := c.key(principalID, entityType, entityID, tabs)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Del(key)
		return
	}
	delete(c.entries, key)
}

// InvalidateAll drops every cached entry. Callers invoke it when roles or
// permission assignments change.
func (c *ResolutionCache) InvalidateAll() {
	c.generation.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		c.entries = make(map[string]*cacheEntry)
	}
	c.log.Debug("resolution cache invalidated")
}

func (c *ResolutionCache) lookupLocked(key string) ([]TabAccessResult, bool) {
	if c.backend != nil {
		v, ok := c.backend.Get(key)
		if !ok {
			return nil, false
		}
		return v.([]TabAccessResult), true
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.results, true
}

func (c *ResolutionCache) storeLocked(key string, results []TabAccessResult) {
	if c.backend != nil {
		c.backend.SetWithTTL(key, results, 1, c.ttl)
		return
	}
	c.entries[key] = &cacheEntry{results: results, expiresAt: time.Now().Add(c.ttl)}
}

// key folds the tab-set identity into the cache key so results are matched
// back to requests by the exact (entity type, entity id, tab set) triple.
// The generation counter makes InvalidateAll effective for backends that
// cannot enumerate keys.
func (c *ResolutionCache) key(principalID, entityType, entityID string, tabs []TabDefinition) string {
	h := fnv.New64a()
	for _, t := range tabs {
		h.Write([]byte(t.ID))
		h.Write([]byte{0})
		h.Write([]byte(t.RequirementRef))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%d|%s|%s|%s|%x", c.generation.Load(), principalID, entityType, entityID, h.Sum64())
}
