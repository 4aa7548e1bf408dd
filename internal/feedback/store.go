// Package feedback records analyst verdicts arriving on the
// analyst-feedback topic. Feedback is write-only with respect to scoring:
// it lands in the store and in the agent knowledge logs, and nothing on the
// decision path reads it back.
package feedback

import (
	"context"
	"sync"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// Store persists analyst feedback.
type Store interface {
	// Record appends one verdict.
	Record(ctx context.Context, f domain.Feedback) error
	// Count reports how many verdicts have been recorded.
	Count(ctx context.Context) (int64, error)
	// Recent returns up to limit verdicts, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Feedback, error)
}

// MemoryStore keeps feedback in process memory. It is the default store
// when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.Feedback
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends the verdict after validation.
func (s *MemoryStore) Record(ctx context.Context, f domain.Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, f)
	return nil
}

// Count reports the number of recorded verdicts.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Recent returns up to limit verdicts, newest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]domain.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]domain.Feedback, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
