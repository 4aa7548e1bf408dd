package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVelocity_CountsWithinWindow(t *testing.T) {
	store := NewMemoryVelocityStore(5 * time.Minute)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for k := int64(1); k <= 9; k++ {
		at := base.Add(time.Duration(k) * time.Second)
		count := store.Bump("CUST-001", at)
		assert.Equal(t, k, count, "the k-th event in a window observes count k")
	}

	count, windowStart, ok := store.Current("CUST-001")
	require.True(t, ok)
	assert.Equal(t, int64(9), count)
	assert.Equal(t, base, windowStart, "events at 10:00:01..10:00:09 share the 10:00 window")
}

func TestVelocity_WindowRoll(t *testing.T) {
	store := NewMemoryVelocityStore(5 * time.Minute)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		store.Bump("CUST-002", base.Add(time.Duration(i)*time.Second))
	}

	// Next batch lands one second past the boundary, so counting restarts.
	rolled := base.Add(5*time.Minute + time.Second)
	assert.Equal(t, int64(1), store.Bump("CUST-002", rolled))
	assert.Equal(t, int64(2), store.Bump("CUST-002", rolled.Add(time.Second)),
		"second event of the new window observes 2, not 5")

	count, windowStart, ok := store.Current("CUST-002")
	require.True(t, ok)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, base.Add(5*time.Minute), windowStart)
}

func TestVelocity_CustomersAreIndependent(t *testing.T) {
	store := NewMemoryVelocityStore(5 * time.Minute)
	now := time.Now()

	store.Bump("CUST-001", now)
	store.Bump("CUST-001", now)
	store.Bump("CUST-002", now)

	count, _, ok := store.Current("CUST-001")
	require.True(t, ok)
	assert.Equal(t, int64(2), count)

	count, _, ok = store.Current("CUST-002")
	require.True(t, ok)
	assert.Equal(t, int64(1), count)

	_, _, ok = store.Current("CUST-003")
	assert.False(t, ok, "unseen customers have no current velocity")
}

func TestVelocity_PruneKeepsCurrentView(t *testing.T) {
	store := NewMemoryVelocityStore(5 * time.Minute)
	old := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	store.Bump("CUST-001", old)
	store.Bump("CUST-001", old.Add(time.Second))
	require.Equal(t, 1, store.Customers())

	store.Prune(old.Add(time.Hour))
	assert.Zero(t, store.Customers(), "closed windows are discarded")

	count, _, ok := store.Current("CUST-001")
	require.True(t, ok, "reduce-by-key view survives pruning")
	assert.Equal(t, int64(2), count)
}

func TestVelocity_LateEventCountsInItsOwnWindow(t *testing.T) {
	store := NewMemoryVelocityStore(5 * time.Minute)
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	store.Bump("CUST-001", base.Add(time.Second))
	store.Bump("CUST-001", base.Add(6*time.Minute))

	// The replayed late event belongs to the first window and lands there.
	assert.Equal(t, int64(2), store.Bump("CUST-001", base.Add(2*time.Second)))
}
