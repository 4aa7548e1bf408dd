package state

import (
	"context"
	"sync"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// MemoryProfileStore is the default in-process profile table.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

// NewMemoryProfileStore creates an empty profile table.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domain.Profile)}
}

// Put upserts the latest snapshot for a customer.
func (s *MemoryProfileStore) Put(ctx context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.CustomerID] = profile
	return nil
}

// Get returns the current snapshot, if any. A miss is not an error.
func (s *MemoryProfileStore) Get(ctx context.Context, customerID string) (*domain.Profile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[customerID]
	if !ok {
		return nil, false, nil
	}
	copied := profile
	return &copied, true, nil
}

// Len reports how many customers have profiles.
func (s *MemoryProfileStore) Len(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.profiles)), nil
}
