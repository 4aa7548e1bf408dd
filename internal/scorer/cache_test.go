package scorer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingScorer(calls *int64, scored Scored, err error) Scorer {
	return ScorerFunc(func(ctx context.Context, prompt string) (Scored, error) {
		atomic.AddInt64(calls, 1)
		return scored, err
	})
}

func TestCachedScorerServesRepeatedPrompts(t *testing.T) {
	var calls int64
	want := Scored{Raw: "RISK_SCORE: 0.7", RiskScore: 0.7, Reasoning: "r", Recommendation: "rec"}
	s := NewCachedScorer(countingScorer(&calls, want, nil), NewMemoryCache(), time.Minute)

	first, err := s.Score(context.Background(), "same prompt")
	require.NoError(t, err)
	second, err := s.Score(context.Background(), "same prompt")
	require.NoError(t, err)

	assert.Equal(t, want, first)
	assert.Equal(t, first, second, "the cached result must round-trip unchanged")
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "the second call should be a cache hit")
}

func TestCachedScorerDistinguishesPrompts(t *testing.T) {
	var calls int64
	s := NewCachedScorer(countingScorer(&calls, Scored{RiskScore: 0.5}, nil), NewMemoryCache(), time.Minute)

	_, err := s.Score(context.Background(), "prompt one")
	require.NoError(t, err)
	_, err = s.Score(context.Background(), "prompt two")
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
	assert.NotEqual(t, CacheKey("prompt one"), CacheKey("prompt two"))
}

func TestCachedScorerNeverCachesErrors(t *testing.T) {
	var calls int64
	inner := ScorerFunc(func(ctx context.Context, prompt string) (Scored, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return Scored{}, errors.New("flaky backend")
		}
		return Scored{RiskScore: 0.3}, nil
	})
	s := NewCachedScorer(inner, NewMemoryCache(), time.Minute)

	_, err := s.Score(context.Background(), "prompt")
	require.Error(t, err)

	scored, err := s.Score(context.Background(), "prompt")
	require.NoError(t, err, "a failure must not poison the cache")
	assert.InDelta(t, 0.3, scored.RiskScore, 1e-9)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestCachedScorerDiscardsCorruptEntries(t *testing.T) {
	var calls int64
	cache := NewMemoryCache()
	cache.Set(context.Background(), CacheKey("prompt"), []byte("{not json"), time.Minute)

	s := NewCachedScorer(countingScorer(&calls, Scored{RiskScore: 0.9}, nil), cache, time.Minute)

	scored, err := s.Score(context.Background(), "prompt")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scored.RiskScore, 1e-9)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "a corrupt entry reads as a miss")
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set(context.Background(), "k", []byte("v"), 10*time.Millisecond)

	_, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)
	_, ok = cache.Get(context.Background(), "k")
	assert.False(t, ok, "expired entries must not be served")
}

func TestMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set(context.Background(), "k", []byte("v"), 0)

	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get(context.Background(), "k")
	assert.True(t, ok)
}
