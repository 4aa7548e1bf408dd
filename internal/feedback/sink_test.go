package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/domain"
)

// The agent registry must remain pluggable as the sink's learner.
var _ Learner = (*agents.Registry)(nil)

type captureLearner struct {
	outcomes []domain.Feedback
}

func (l *captureLearner) RecordOutcome(f domain.Feedback) {
	l.outcomes = append(l.outcomes, f)
}

type failingStore struct{}

func (failingStore) Record(ctx context.Context, f domain.Feedback) error {
	return errors.New("feedback database down")
}

func (failingStore) Count(ctx context.Context) (int64, error) { return 0, nil }

func (failingStore) Recent(ctx context.Context, limit int) ([]domain.Feedback, error) {
	return nil, nil
}

func TestSink_ProcessRecordsAndTeaches(t *testing.T) {
	store := NewMemoryStore()
	learner := &captureLearner{}
	sink := NewSink(store, learner)
	ctx := context.Background()

	f := verdict("TXN-88", true, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	require.NoError(t, sink.Process(ctx, f))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.Len(t, learner.outcomes, 1, "learner must see every verdict")
	assert.Equal(t, "TXN-88", learner.outcomes[0].TransactionID)
	assert.True(t, learner.outcomes[0].ActualFraud)
}

func TestSink_NilLearnerStillRecords(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store, nil)
	ctx := context.Background()

	f := verdict("TXN-89", false, time.Now())
	require.NoError(t, sink.Process(ctx, f))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSink_RejectsInvalidVerdicts(t *testing.T) {
	store := NewMemoryStore()
	learner := &captureLearner{}
	sink := NewSink(store, learner)

	err := sink.Process(context.Background(), domain.Feedback{ActualFraud: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transactionId")
	assert.Empty(t, learner.outcomes, "invalid verdicts never reach the learner")
}

func TestSink_SurfacesStoreFailures(t *testing.T) {
	learner := &captureLearner{}
	sink := NewSink(failingStore{}, learner)

	f := verdict("TXN-91", false, time.Now())
	err := sink.Process(context.Background(), f)
	require.Error(t, err, "store outages must reach the bus retry policy")
	assert.Contains(t, err.Error(), "feedback database down")
	assert.Empty(t, learner.outcomes, "the learner only sees persisted verdicts")
}
