package domain

import (
	"fmt"
	"strings"
)

// EnrichedEvent is an event paired with whatever profile and velocity the
// enrichment stage knew at processing time. It exists only in flight within a
// single decision pass. A nil Profile or Velocity is a join miss, not an
// error.
type EnrichedEvent struct {
	Event    Event
	Profile  *Profile
	Velocity *int64
}

// Enrich pairs an event with optional profile and velocity joins.
func Enrich(event Event, profile *Profile, velocity *int64) EnrichedEvent {
	return EnrichedEvent{Event: event, Profile: profile, Velocity: velocity}
}

// HighVelocity reports whether the joined velocity exceeds the given
// threshold. Absent velocity is never high.
func (e EnrichedEvent) HighVelocity(threshold int64) bool {
	return e.Velocity != nil && *e.Velocity > threshold
}

// UnusualAmount reports whether the event amount exceeds multiplier times the
// profile average. Absent profile is never unusual.
func (e EnrichedEvent) UnusualAmount(multiplier float64) bool {
	return e.Profile != nil && e.Event.Amount > multiplier*e.Profile.AverageAmount
}

// HighRiskTier reports whether the joined profile carries the high tier.
func (e EnrichedEvent) HighRiskTier() bool {
	return e.Profile != nil && e.Profile.RiskTier == RiskTierHigh
}

// DescribeContext renders the known enrichment for prompt embedding and for
// the decision explanation. With neither join present it reports that no
// streaming context was available.
func (e EnrichedEvent) DescribeContext() string {
	var lines []string
	if e.Velocity != nil {
		lines = append(lines, fmt.Sprintf("Real-time velocity: %d transactions in the last 5 minutes", *e.Velocity))
	}
	if e.Profile != nil {
		lines = append(lines, fmt.Sprintf("Customer profile: average %.2f, daily limit %.2f, risk tier %s, home location %q",
			e.Profile.AverageAmount, e.Profile.DailyLimit, e.Profile.RiskTier, e.Profile.PrimaryLocation))
		lines = append(lines, fmt.Sprintf("Typical categories: %s", strings.Join(e.Profile.TypicalCategories, ", ")))
	}
	if len(lines) == 0 {
		return "No streaming context available for this transaction"
	}
	return strings.Join(lines, "\n")
}
