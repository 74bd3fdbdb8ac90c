package catalog

import (
	"context"
	"os"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestMatchCacheEvictsAfterTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	cache := NewMatchCache(store, DefaultCacheTTL, WithClock(clock.Now))

	ctx := context.Background()
	cache.Put(ctx, "Elden Ring", Match{ID: 119133, Name: "Elden Ring"})

	clock.Advance(23 * time.Hour)
	m, ok := cache.Get(ctx, "ELDEN RING!")
	if !ok || m.ID != 119133 {
		t.Fatalf("expected hit under a normalized key, got %v %v", m, ok)
	}

	clock.Advance(time.Hour)
	if _, ok := cache.Get(ctx, "Elden Ring"); ok {
		t.Fatal("entry should be stale at 24h")
	}
	if store.Len() != 0 {
		t.Fatalf("stale entry not evicted, store has %d entries", store.Len())
	}
}

func TestMatchCacheReplacesEntry(t *testing.T) {
	cache := NewMatchCache(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	cache.Put(ctx, "Hades", Match{ID: 1, Name: "Hades"})
	cache.Put(ctx, "hades", Match{ID: 2, Name: "Hades"})

	m, ok := cache.Get(ctx, "Hades")
	if !ok || m.ID != 2 {
		t.Fatalf("Get = %v %v, want id 2", m, ok)
	}
	if cache.TTL() != time.Hour {
		t.Fatalf("TTL = %v", cache.TTL())
	}
}

func TestMatchCacheDropsCorruptEntry(t *testing.T) {
	store := NewMemoryStore()
	cache := NewMatchCache(store, time.Hour)
	ctx := context.Background()
	_ = store.Set(ctx, cache.Key("Hades"), []byte("{not json"), 0)

	if _, ok := cache.Get(ctx, "Hades"); ok {
		t.Fatal("corrupt entry should be a miss")
	}
	if store.Len() != 0 {
		t.Fatal("corrupt entry should be deleted")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	store, err := NewRedisStoreFromURL(url)
	if err != nil {
		t.Fatalf("NewRedisStoreFromURL: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	key := "gamarr:test:" + t.Name()
	if _, found, err := store.Get(ctx, key); err != nil || found {
		t.Fatalf("Get on missing key = %v %v", found, err)
	}
	if err := store.Set(ctx, key, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, found, err := store.Get(ctx, key)
	if err != nil || !found || string(v) != "v" {
		t.Fatalf("Get = %q %v %v", v, found, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
