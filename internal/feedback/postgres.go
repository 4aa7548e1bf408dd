package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// Schema is the DDL for the analyst feedback table. EnsureSchema applies it
// at startup so the store works against a fresh database.
const Schema = `
CREATE TABLE IF NOT EXISTS analyst_feedback (
    id             BIGSERIAL PRIMARY KEY,
    transaction_id TEXT        NOT NULL,
    actual_fraud   BOOLEAN     NOT NULL,
    feedback       TEXT        NOT NULL DEFAULT '',
    ts             TIMESTAMPTZ NOT NULL,
    recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS analyst_feedback_txn_idx ON analyst_feedback (transaction_id);
`

// feedbackRow is the table shape; the store converts to and from
// domain.Feedback at the boundary.
type feedbackRow struct {
	ID            int64     `db:"id"`
	TransactionID string    `db:"transaction_id"`
	ActualFraud   bool      `db:"actual_fraud"`
	Feedback      string    `db:"feedback"`
	Timestamp     time.Time `db:"ts"`
	RecordedAt    time.Time `db:"recorded_at"`
}

// PostgresStore persists feedback in PostgreSQL. The *sqlx.DB is owned by
// the caller; the store only borrows it.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// EnsureSchema creates the feedback table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure feedback schema: %w", err)
	}
	return nil
}

// Record inserts one verdict.
func (s *PostgresStore) Record(ctx context.Context, f domain.Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO analyst_feedback (transaction_id, actual_fraud, feedback, ts)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		f.TransactionID, f.ActualFraud, f.Feedback, f.Timestamp.Time())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("failed to insert feedback (%s): %w", pqErr.Code.Name(), err)
		}
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// Count reports the number of recorded verdicts.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int64
	err := s.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM analyst_feedback`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Recent returns up to limit verdicts, newest first by analyst timestamp.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]domain.Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, transaction_id, actual_fraud, feedback, ts, recorded_at
		FROM analyst_feedback
		ORDER BY ts DESC, id DESC
		LIMIT $1`

	rows, err := s.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent feedback: %w", err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		var row feedbackRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		out = append(out, domain.Feedback{
			TransactionID: row.TransactionID,
			ActualFraud:   row.ActualFraud,
			Feedback:      row.Feedback,
			Timestamp:     domain.NewEventTime(row.Timestamp),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}
	return out, nil
}
