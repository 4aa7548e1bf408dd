package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ScoreCache stores serialized scoring results keyed by prompt digest.
// Implementations treat every failure as a miss; a broken cache must never
// fail a scoring call.
type ScoreCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]cacheEntry
}

type cacheEntry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns a process-local ScoreCache.
func NewMemoryCache() ScoreCache { return &memoryCache{m: make(map[string]cacheEntry)} }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := cacheEntry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

const scoreKeyPrefix = "fraudlens:score:"

type redisCache struct {
	client *redis.Client
}

// NewRedisCache returns a ScoreCache backed by Redis so repeated prompts
// across processes share a single scoring call.
func NewRedisCache(addr string) ScoreCache {
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := r.client.Get(opCtx, scoreKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	opCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = r.client.Set(opCtx, scoreKeyPrefix+key, val, ttl).Err()
}

// CacheKey derives the cache key for a prompt. Hashing keeps keys bounded
// regardless of prompt length and avoids shipping transaction details into
// the cache namespace.
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// CachedScorer serves repeated prompts from cache before reaching the
// backend. It sits outside the breaker and limiter so hits cost nothing.
type CachedScorer struct {
	inner Scorer
	cache ScoreCache
	ttl   time.Duration
}

// NewCachedScorer wraps inner with cache. A non-positive ttl falls back to
// ten minutes.
func NewCachedScorer(inner Scorer, cache ScoreCache, ttl time.Duration) *CachedScorer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedScorer{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedScorer) Score(ctx context.Context, prompt string) (Scored, error) {
	key := CacheKey(prompt)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var cached Scored
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		log.Debug().Str("key", key).Msg("Discarding corrupt score cache entry")
	}

	scored, err := s.inner.Score(ctx, prompt)
	if err != nil {
		return Scored{}, err
	}
	if raw, err := json.Marshal(scored); err == nil {
		s.cache.Set(ctx, key, raw, s.ttl)
	}
	return scored, nil
}
