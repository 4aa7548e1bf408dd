package state

import (
	"sync"
	"time"
)

// MemoryVelocityStore implements VelocityStore over two in-process tables:
// velocity-windows (count per customer per window start) and
// current-velocity (latest count per customer). Counts within a window only
// grow; a new window starts from zero.
type MemoryVelocityStore struct {
	window time.Duration

	mu      sync.Mutex
	windows map[string]map[int64]int64
	current map[string]currentVelocity
}

type currentVelocity struct {
	count       int64
	windowStart time.Time
}

// NewMemoryVelocityStore creates a store over the given tumbling window.
func NewMemoryVelocityStore(window time.Duration) *MemoryVelocityStore {
	return &MemoryVelocityStore{
		window:  window,
		windows: make(map[string]map[int64]int64),
		current: make(map[string]currentVelocity),
	}
}

// WindowStart aligns t to its tumbling window boundary.
func (s *MemoryVelocityStore) WindowStart(t time.Time) time.Time {
	return t.Truncate(s.window)
}

// Bump increments the window covering `at` and refreshes the
// current-velocity view. The returned count includes the event being
// recorded, so the k-th event inside a window observes k.
func (s *MemoryVelocityStore) Bump(customerID string, at time.Time) int64 {
	start := s.WindowStart(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	perWindow, ok := s.windows[customerID]
	if !ok {
		perWindow = make(map[int64]int64)
		s.windows[customerID] = perWindow
	}
	perWindow[start.UnixNano()]++
	count := perWindow[start.UnixNano()]

	s.current[customerID] = currentVelocity{count: count, windowStart: start}
	return count
}

// Current returns the latest observed count for the customer.
func (s *MemoryVelocityStore) Current(customerID string) (int64, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cv, ok := s.current[customerID]
	if !ok {
		return 0, time.Time{}, false
	}
	return cv.count, cv.windowStart, true
}

// Prune drops closed windows that started before the cutoff.
func (s *MemoryVelocityStore) Prune(cutoff time.Time) {
	edge := cutoff.UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	for customer, perWindow := range s.windows {
		for start := range perWindow {
			if start < edge {
				delete(perWindow, start)
			}
		}
		if len(perWindow) == 0 {
			delete(s.windows, customer)
		}
	}
}

// Customers reports how many customers have live window state.
func (s *MemoryVelocityStore) Customers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
