package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/domain"
)

func sampleProfile() domain.Profile {
	return domain.Profile{
		CustomerID:        "CUST-001",
		AverageAmount:     253,
		DailyLimit:        2000,
		TypicalCategories: []string{"GROCERY", "RETAIL"},
		PrimaryLocation:   "Los Angeles",
		RiskTier:          domain.RiskTierLow,
	}
}

func TestMemoryProfileStore_PutGet(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "CUST-001")
	require.NoError(t, err)
	assert.False(t, found, "a miss is not an error")

	require.NoError(t, store.Put(ctx, sampleProfile()))

	got, found, err := store.Get(ctx, "CUST-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Los Angeles", got.PrimaryLocation)

	// Mutating the returned snapshot must not leak into the table.
	got.PrimaryLocation = "Mars"
	again, _, err := store.Get(ctx, "CUST-001")
	require.NoError(t, err)
	assert.Equal(t, "Los Angeles", again.PrimaryLocation)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryProfileStore_LatestSnapshotWins(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()

	first := sampleProfile()
	require.NoError(t, store.Put(ctx, first))

	updated := first
	updated.RiskTier = domain.RiskTierHigh
	require.NoError(t, store.Put(ctx, updated))

	got, found, err := store.Get(ctx, "CUST-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.RiskTierHigh, got.RiskTier)
}

func TestRedisProfileStore_PutGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisProfileStoreWithClient(client)
	ctx := context.Background()

	profile := sampleProfile()
	payload, err := json.Marshal(profile)
	require.NoError(t, err)

	mock.ExpectSet("fraudlens:profile:CUST-001", payload, 0).SetVal("OK")
	require.NoError(t, store.Put(ctx, profile))

	mock.ExpectGet("fraudlens:profile:CUST-001").SetVal(string(payload))
	got, found, err := store.Get(ctx, "CUST-001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, profile.AverageAmount, got.AverageAmount)
	assert.Equal(t, domain.RiskTierLow, got.RiskTier)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisProfileStore_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisProfileStoreWithClient(client)

	mock.ExpectGet("fraudlens:profile:CUST-404").RedisNil()
	got, found, err := store.Get(context.Background(), "CUST-404")
	require.NoError(t, err, "a miss is not an error")
	assert.False(t, found)
	assert.Nil(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisProfileStore_ErrorsSurface(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisProfileStoreWithClient(client)

	mock.ExpectGet("fraudlens:profile:CUST-001").SetErr(assert.AnError)
	_, _, err := store.Get(context.Background(), "CUST-001")
	assert.Error(t, err)

	mock.ExpectGet("fraudlens:profile:CUST-002").SetVal("{not json")
	_, _, err = store.Get(context.Background(), "CUST-002")
	assert.Error(t, err, "corrupt snapshots surface as errors")
}

func TestRedisProfileStore_Len(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisProfileStoreWithClient(client)

	mock.ExpectKeys("fraudlens:profile:*").SetVal([]string{
		"fraudlens:profile:CUST-001",
		"fraudlens:profile:CUST-002",
	})
	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
