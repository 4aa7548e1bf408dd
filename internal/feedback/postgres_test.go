package feedback

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/domain"
)

func mockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return NewPostgresStore(db, 5*time.Second), mock
}

func TestPostgresStore_Record(t *testing.T) {
	store, mock := mockStore(t)
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyst_feedback")).
		WithArgs("TXN-42", true, "confirmed by analyst", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Record(context.Background(), verdict("TXN-42", true, at))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordFailureSurfaces(t *testing.T) {
	store, mock := mockStore(t)
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyst_feedback")).
		WillReturnError(errors.New("connection refused"))

	err := store.Record(context.Background(), verdict("TXN-42", true, at))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert feedback")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectsInvalidBeforeQuerying(t *testing.T) {
	store, mock := mockStore(t)

	err := store.Record(context.Background(), domain.Feedback{ActualFraud: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transactionId")
	assert.NoError(t, mock.ExpectationsWereMet(), "invalid feedback must not reach the database")
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM analyst_feedback")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentMapsRows(t *testing.T) {
	store, mock := mockStore(t)
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "transaction_id", "actual_fraud", "feedback", "ts", "recorded_at"}).
		AddRow(2, "TXN-2", false, "looks fine", base.Add(time.Minute), base.Add(2*time.Minute)).
		AddRow(1, "TXN-1", true, "card tested then drained", base, base.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, transaction_id, actual_fraud, feedback, ts, recorded_at")).
		WithArgs(10).
		WillReturnRows(rows)

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, "TXN-2", recent[0].TransactionID)
	assert.False(t, recent[0].ActualFraud)
	assert.Equal(t, "TXN-1", recent[1].TransactionID)
	assert.True(t, recent[1].ActualFraud)
	assert.Equal(t, "card tested then drained", recent[1].Feedback)
	assert.Equal(t, base, recent[1].Timestamp.Time())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecentDefaultLimit(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, transaction_id")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "actual_fraud", "feedback", "ts", "recorded_at"}))

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS analyst_feedback")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
