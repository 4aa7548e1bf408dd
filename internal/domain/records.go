// Package domain holds the typed carriers that move through the screening
// pipeline: authorization events, customer profiles, enrichment joins,
// analyzer opinions, and the final decision.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventTimeLayout is the bus wire format for event timestamps: second
// precision, no zone.
const EventTimeLayout = "2006-01-02T15:04:05"

// EventTime wraps time.Time to marshal with the bus wire layout.
type EventTime time.Time

// NewEventTime truncates t to second precision.
func NewEventTime(t time.Time) EventTime {
	return EventTime(t.Truncate(time.Second))
}

// Time returns the underlying time.Time.
func (t EventTime) Time() time.Time {
	return time.Time(t)
}

// MarshalJSON renders the wire layout.
func (t EventTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(EventTimeLayout) + `"`), nil
}

// UnmarshalJSON parses the wire layout.
func (t *EventTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.Parse(EventTimeLayout, s)
	if err != nil {
		return fmt.Errorf("invalid event timestamp %q: %w", s, err)
	}
	*t = EventTime(parsed)
	return nil
}

// Event is one card-authorization record submitted for screening. Events are
// immutable once decoded from the bus.
type Event struct {
	TransactionID    string            `json:"transactionId"`
	CustomerID       string            `json:"customerId"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	MerchantID       string            `json:"merchantId"`
	MerchantCategory string            `json:"merchantCategory"`
	Location         string            `json:"location"`
	Timestamp        EventTime         `json:"timestamp"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Validate enforces the wire contract: non-empty identifiers and a strictly
// positive amount. Malformed events are skipped at the bus adapter.
func (e Event) Validate() error {
	switch {
	case e.TransactionID == "":
		return fmt.Errorf("event missing transactionId")
	case e.CustomerID == "":
		return fmt.Errorf("event %s missing customerId", e.TransactionID)
	case e.Amount <= 0:
		return fmt.Errorf("event %s has non-positive amount %.2f", e.TransactionID, e.Amount)
	case e.Currency == "":
		return fmt.Errorf("event %s missing currency", e.TransactionID)
	case e.MerchantID == "":
		return fmt.Errorf("event %s missing merchantId", e.TransactionID)
	case e.MerchantCategory == "":
		return fmt.Errorf("event %s missing merchantCategory", e.TransactionID)
	case e.Location == "":
		return fmt.Errorf("event %s missing location", e.TransactionID)
	}
	return nil
}

// Describe renders the event for prompt embedding and log lines.
func (e Event) Describe() string {
	return fmt.Sprintf("Transaction %s: %.2f %s at merchant %s (%s), location %q, time %s",
		e.TransactionID, e.Amount, e.Currency, e.MerchantID, e.MerchantCategory,
		e.Location, e.Timestamp.Time().Format(EventTimeLayout))
}

// RiskTier is the profile's standing risk classification.
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

// ParseRiskTier normalizes tier strings from external snapshots.
func ParseRiskTier(s string) (RiskTier, error) {
	switch RiskTier(strings.ToLower(strings.TrimSpace(s))) {
	case RiskTierLow:
		return RiskTierLow, nil
	case RiskTierMedium:
		return RiskTierMedium, nil
	case RiskTierHigh:
		return RiskTierHigh, nil
	}
	return "", fmt.Errorf("unknown risk tier %q", s)
}

// Profile is the historical baseline kept per payer, materialized from the
// compacted profile topic.
type Profile struct {
	CustomerID        string    `json:"customerId"`
	AverageAmount     float64   `json:"averageAmount"`
	DailyLimit        float64   `json:"dailyLimit"`
	TypicalCategories []string  `json:"typicalCategories"`
	PrimaryLocation   string    `json:"primaryLocation"`
	RiskTier          RiskTier  `json:"riskTier"`
	UpdatedAt         EventTime `json:"updatedAt,omitempty"`
}

// Validate enforces the profile invariants: positive amounts, average within
// the daily limit, at least one typical category, known risk tier.
func (p Profile) Validate() error {
	switch {
	case p.CustomerID == "":
		return fmt.Errorf("profile missing customerId")
	case p.AverageAmount <= 0:
		return fmt.Errorf("profile %s has non-positive average %.2f", p.CustomerID, p.AverageAmount)
	case p.DailyLimit <= 0:
		return fmt.Errorf("profile %s has non-positive daily limit %.2f", p.CustomerID, p.DailyLimit)
	case p.AverageAmount > p.DailyLimit:
		return fmt.Errorf("profile %s average %.2f exceeds daily limit %.2f",
			p.CustomerID, p.AverageAmount, p.DailyLimit)
	case len(p.TypicalCategories) == 0:
		return fmt.Errorf("profile %s has no typical categories", p.CustomerID)
	}
	if _, err := ParseRiskTier(string(p.RiskTier)); err != nil {
		return fmt.Errorf("profile %s: %w", p.CustomerID, err)
	}
	return nil
}

// Feedback is an analyst's post-hoc verdict on a screened transaction,
// consumed from the analyst-feedback topic.
type Feedback struct {
	TransactionID string    `json:"transactionId"`
	ActualFraud   bool      `json:"actualFraud"`
	Feedback      string    `json:"feedback"`
	Timestamp     EventTime `json:"timestamp"`
}

// Validate checks the minimal feedback contract.
func (f Feedback) Validate() error {
	if f.TransactionID == "" {
		return fmt.Errorf("feedback missing transactionId")
	}
	return nil
}
