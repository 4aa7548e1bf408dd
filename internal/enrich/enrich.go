// Package enrich implements the enrichment topology: it materializes the
// profile table from the compacted profile topic and the velocity tables
// from the transaction stream, then annotates each event with both joins.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/state"
)

// Enricher joins events against the materialized profile and velocity
// tables. Both joins are left joins: a missing profile or velocity never
// drops the event. The stores are rebuilt by replaying the input topics, so
// an Enricher holds no state of its own.
type Enricher struct {
	profiles      state.ProfileStore
	velocity      state.VelocityStore
	highThreshold int64
}

// New builds an Enricher over the given stores. highThreshold only drives
// the high-velocity log line; the decision thresholds live downstream.
func New(profiles state.ProfileStore, velocity state.VelocityStore, highThreshold int64) *Enricher {
	if highThreshold <= 0 {
		highThreshold = 3
	}
	return &Enricher{profiles: profiles, velocity: velocity, highThreshold: highThreshold}
}

// ApplyProfile upserts one profile snapshot into the materialized table.
// Invalid snapshots are rejected so a bad record cannot shadow a good one.
func (e *Enricher) ApplyProfile(ctx context.Context, profile domain.Profile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("rejecting profile snapshot: %w", err)
	}
	if err := e.profiles.Put(ctx, profile); err != nil {
		return fmt.Errorf("materializing profile for %s: %w", profile.CustomerID, err)
	}
	log.Debug().
		Str("customer", profile.CustomerID).
		Str("tier", string(profile.RiskTier)).
		Msg("Profile snapshot materialized")
	return nil
}

// Enrich records the event in its velocity window and joins the profile and
// the fresh count onto it. The triggering event observes its own increment,
// so the k-th event inside a window sees a velocity of k.
func (e *Enricher) Enrich(ctx context.Context, event domain.Event) (domain.EnrichedEvent, error) {
	count := e.velocity.Bump(event.CustomerID, event.Timestamp.Time())

	profile, ok, err := e.profiles.Get(ctx, event.CustomerID)
	if err != nil {
		// A broken profile backend degrades to a join miss; the event
		// still flows with velocity only.
		log.Warn().
			Err(err).
			Str("customer", event.CustomerID).
			Msg("Profile lookup failed, continuing without profile")
		profile, ok = nil, false
	}
	if !ok {
		profile = nil
	}

	if count > e.highThreshold {
		log.Info().
			Str("customer", event.CustomerID).
			Int64("velocity", count).
			Msg("High velocity detected")
	}

	return domain.Enrich(event, profile, &count), nil
}

// Prune discards velocity window state older than the cutoff. The
// current-velocity view survives.
func (e *Enricher) Prune(cutoff time.Time) {
	e.velocity.Prune(cutoff)
}

// ProfileCount reports the size of the materialized profile table for
// health reporting.
func (e *Enricher) ProfileCount(ctx context.Context) (int64, error) {
	return e.profiles.Len(ctx)
}
