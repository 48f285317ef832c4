package accesskit_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/oarkflow/accesskit"
)

func newCache(t *testing.T, f *fixture, opts ...accesskit.CacheOption) *accesskit.ResolutionCache {
	t.Helper()
	cache, err := accesskit.NewResolutionCache(f.resolver, opts...)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return cache
}

func TestCacheServesSecondCallWithoutRefetch(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	first, err := cache.ResolveBatch(ctx, "alice", "worker", "7")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := cache.ResolveBatch(ctx, "alice", "worker", "7")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if f.source.count() != 1 {
		t.Fatalf("expected one underlying fetch, got %d", f.source.count())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs from original")
	}
}

func TestCacheKeysPerPrincipalAndEntity(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	for _, call := range []struct{ principal, entityType, entityID string }{
		{"alice", "worker", "7"},
		{"bob", "worker", "7"},
		{"alice", "worker", "8"},
	} {
		if _, err := cache.ResolveBatch(ctx, call.principal, call.entityType, call.entityID); err != nil {
			t.Fatalf("resolve %v: %v", call, err)
		}
	}
	if f.source.count() != 3 {
		t.Fatalf("expected three underlying fetches for three distinct keys, got %d", f.source.count())
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f, accesskit.WithTTL(10*time.Millisecond))
	ctx := context.Background()

	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if f.source.count() != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", f.source.count())
	}
}

func TestInvalidateAllForcesRefetch(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	before, err := cache.ResolveBatch(ctx, "alice", "worker", "7")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if before[4].Granted {
		t.Fatalf("expected manage tab denied before role change")
	}

	// grant manager to alice, then flush: the next resolution must see it
	if err := f.memberships.AssignRole(ctx, "alice", "manager"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	cache.InvalidateAll()

	after, err := cache.ResolveBatch(ctx, "alice", "worker", "7")
	if err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if !after[4].Granted {
		t.Fatalf("expected manage tab granted after role change and flush")
	}
	if f.source.count() != 2 {
		t.Fatalf("expected exactly two underlying fetches, got %d", f.source.count())
	}
}

func TestInvalidateSingleEntry(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := cache.ResolveBatch(ctx, "bob", "worker", "7"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	cache.Invalidate("alice", "worker", "7")

	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := cache.ResolveBatch(ctx, "bob", "worker", "7"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// alice refetched, bob still cached
	if f.source.count() != 3 {
		t.Fatalf("expected three underlying fetches, got %d", f.source.count())
	}
}

func TestConcurrentCallersShareOneResolution(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.ResolveBatch(ctx, "alice", "worker", "7")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := f.source.count(); n > 2 {
		t.Fatalf("expected concurrent callers to share resolutions, got %d fetches", n)
	}
}

func TestCancelledResolutionIsNotCached(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); !errors.Is(err, context.Canceled) {
		// the underlying resolver may not consult ctx itself; what matters
		// is that nothing was cached either way
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	fetchesAfterCancel := f.source.count()
	if _, err := cache.ResolveBatch(context.Background(), "alice", "worker", "7"); err != nil {
		t.Fatalf("resolve with live context: %v", err)
	}
	if f.source.count() != fetchesAfterCancel+1 {
		t.Fatalf("cancelled resolution leaked into the cache")
	}
}

func TestCacheErrorsAreNotCached(t *testing.T) {
	f := newFixture(t)
	cache := newCache(t, f)
	ctx := context.Background()

	f.source.err = errors.New("storage down")
	if _, err := cache.ResolveBatch(ctx, "alice", "worker", "7"); !errors.Is(err, accesskit.ErrResolution) {
		t.Fatalf("expected resolution failure, got %v", err)
	}
	f.source.err = nil
	results, err := cache.ResolveBatch(ctx, "alice", "worker", "7")
	if err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if len(results) != len(workerTabs) {
		t.Fatalf("expected full batch after recovery")
	}
}

func TestCacheRejectsNonPositiveTTL(t *testing.T) {
	f := newFixture(t)
	if _, err := accesskit.NewResolutionCache(f.resolver, accesskit.WithTTL(0)); !errors.Is(err, accesskit.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
