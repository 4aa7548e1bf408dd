// Package state owns the materialized stores behind enrichment: the
// velocity-windows and current-velocity stores kept by the stream processor
// and the profile table fed from the compacted profile topic.
package state

import (
	"context"
	"time"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// VelocityStore tracks per-customer transaction counts over tumbling
// windows. Implementations are owned per partition; counts are rebuilt by
// replaying the transaction topic on restart.
type VelocityStore interface {
	// Bump records one event at the given time and returns the count of
	// the window covering it, including this event.
	Bump(customerID string, at time.Time) int64

	// Current returns the most recently observed count for the customer
	// and the start of the window it belongs to.
	Current(customerID string) (count int64, windowStart time.Time, ok bool)

	// Prune discards window state older than the cutoff. The
	// current-velocity table is a reduce-by-key view and survives pruning.
	Prune(cutoff time.Time)
}

// ProfileStore is the materialized view of the compacted profile topic.
type ProfileStore interface {
	Put(ctx context.Context, profile domain.Profile) error
	Get(ctx context.Context, customerID string) (*domain.Profile, bool, error)
	Len(ctx context.Context) (int64, error)
}
