package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"Gamarr/services/matcher"
	"Gamarr/shared/logger"
)

// DefaultCacheTTL is how long a resolved match is trusted.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "gamarr:catalog:match:"

// Store is a byte-oriented key/value backend.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Match is the best catalog entry for a title.
type Match struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	CoverURL string `json:"cover_url,omitempty"`
}

// CacheEntry is what the match cache persists per normalized name.
type CacheEntry struct {
	Match      Match     `json:"match"`
	InsertedAt time.Time `json:"inserted_at"`
}

// MatchCache is a read-through cache keyed by normalized title. Entries older
// than the TTL are deleted when read and reported as misses, whatever the
// backend's own expiry does.
type MatchCache struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type CacheOption func(*MatchCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *MatchCache) {
		c.now = now
	}
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *MatchCache) {
		c.logger = l
	}
}

func NewMatchCache(store Store, ttl time.Duration, opts ...CacheOption) *MatchCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &MatchCache{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Component(c.logger, "catalog_cache")
	return c
}

// TTL returns the eviction policy.
func (c *MatchCache) TTL() time.Duration {
	return c.ttl
}

// Key returns the store key for a title.
func (c *MatchCache) Key(title string) string {
	return cacheKeyPrefix + matcher.NormalizeTitle(title)
}

// Get returns the cached match for title. Backend errors count as misses.
func (c *MatchCache) Get(ctx context.Context, title string) (*Match, bool) {
	key := c.Key(title)
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = c.store.Delete(ctx, key)
		return nil, false
	}
	if c.now().Sub(entry.InsertedAt) >= c.ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("cache eviction failed", "key", key, "error", err)
		}
		return nil, false
	}
	m := entry.Match
	return &m, true
}

// Put replaces the entry for title.
func (c *MatchCache) Put(ctx context.Context, title string, m Match) {
	key := c.Key(title)
	raw, err := json.Marshal(CacheEntry{Match: m, InsertedAt: c.now()})
	if err != nil {
		c.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

type memItem struct {
	v       []byte
	expires time.Time
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && s.now().After(it.expires) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{v: clone(value)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = it
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many entries are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// RedisStore shares the cache between processes.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt)}
}

// NewRedisStoreFromURL parses a redis:// URL.
func NewRedisStoreFromURL(rawURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(opt), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}
