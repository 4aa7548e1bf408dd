// Package route branches the decision stream to its three output topics.
// Each decision goes to exactly one destination, chosen by the fraud flag
// and the confidence score alone.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/stream"
)

// Envelope type tags on the output topics.
const (
	TypeFraudAlert = "AI_FRAUD_ALERT"
	TypeReviewCase = "AI_REVIEW_CASE"
	TypeApproval   = "AI_APPROVAL"
)

// Priority and status values carried by the envelopes.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"

	StatusPendingReview = "PENDING_HUMAN_REVIEW"
	StatusApprovedByAI  = "APPROVED_BY_AI"
)

// Confidence bands. The alert branch requires strictly more than
// alertConfidence; the review band is open on both ends, so 0.7 and 0.3
// themselves fall outside it.
const (
	alertConfidence = 0.8
	reviewUpper     = 0.7
	reviewLower     = 0.3
)

// Destination identifies the single output a decision routes to.
type Destination int

const (
	DestFraudAlert Destination = iota
	DestHumanReview
	DestApproved
)

// Topic returns the output topic backing the destination.
func (d Destination) Topic() string {
	switch d {
	case DestFraudAlert:
		return stream.TopicFraudAlerts
	case DestHumanReview:
		return stream.TopicHumanReview
	default:
		return stream.TopicApproved
	}
}

func (d Destination) String() string {
	switch d {
	case DestFraudAlert:
		return "fraud-alert"
	case DestHumanReview:
		return "human-review"
	default:
		return "approved"
	}
}

// Classify picks the destination for a decision. Predicates are evaluated
// in order, so the first match wins and every decision lands somewhere:
//
//  1. fraud with confidence above 0.8 raises an alert
//  2. any remaining fraud, or confidence inside the review band, goes to a
//     human
//  3. everything else is approved
//
// A confident fraud call at exactly 0.8 goes to review, not alerting.
func Classify(d domain.Decision) Destination {
	switch {
	case d.Fraud && d.Confidence > alertConfidence:
		return DestFraudAlert
	case d.Fraud || d.NeedsHuman(reviewLower, reviewUpper):
		return DestHumanReview
	default:
		return DestApproved
	}
}

// FraudAlert is the envelope published to fraud-alerts.
type FraudAlert struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
	Confidence    int64  `json:"confidence"`
	Reason        string `json:"reason"`
	AgentCount    int    `json:"agentCount"`
	AIExplanation string `json:"aiExplanation"`
	Timestamp     int64  `json:"timestamp"`
	Priority      string `json:"priority"`
}

// ReviewCase is the envelope published to human-review. It carries the full
// opinion list so the analyst sees what each agent concluded.
type ReviewCase struct {
	Type          string           `json:"type"`
	TransactionID string           `json:"transactionId"`
	Confidence    int64            `json:"confidence"`
	Explanation   string           `json:"explanation"`
	AgentInsights []domain.Opinion `json:"agentInsights"`
	Status        string           `json:"status"`
	Timestamp     int64            `json:"timestamp"`
}

// Approval is the envelope published to approved-transactions. Approvals
// are high volume, so they carry the opinion count rather than the list.
type Approval struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
	Confidence    int64  `json:"confidence"`
	Status        string `json:"status"`
	AgentCount    int    `json:"agentCount"`
	Timestamp     int64  `json:"timestamp"`
}

// NewFraudAlert builds the alert envelope for a decision. Priority is HIGH
// at confidence 0.8 and above, MEDIUM below.
func NewFraudAlert(d domain.Decision) FraudAlert {
	priority := PriorityMedium
	if d.HighConfidence(alertConfidence) {
		priority = PriorityHigh
	}
	return FraudAlert{
		Type:          TypeFraudAlert,
		TransactionID: d.TransactionID,
		Confidence:    confidencePercent(d),
		Reason:        d.Reason,
		AgentCount:    len(d.Opinions),
		AIExplanation: d.Explanation,
		Timestamp:     time.Now().UnixMilli(),
		Priority:      priority,
	}
}

// NewReviewCase builds the human-review envelope for a decision.
func NewReviewCase(d domain.Decision) ReviewCase {
	return ReviewCase{
		Type:          TypeReviewCase,
		TransactionID: d.TransactionID,
		Confidence:    confidencePercent(d),
		Explanation:   d.Explanation,
		AgentInsights: d.Opinions,
		Status:        StatusPendingReview,
		Timestamp:     time.Now().UnixMilli(),
	}
}

// NewApproval builds the approval envelope for a decision.
func NewApproval(d domain.Decision) Approval {
	return Approval{
		Type:          TypeApproval,
		TransactionID: d.TransactionID,
		Confidence:    confidencePercent(d),
		Status:        StatusApprovedByAI,
		AgentCount:    len(d.Opinions),
		Timestamp:     time.Now().UnixMilli(),
	}
}

func confidencePercent(d domain.Decision) int64 {
	return int64(math.Round(d.Confidence * 100))
}

// Router publishes decision envelopes to the output topics, keyed by
// customer so each customer's outcomes stay ordered.
type Router struct {
	bus stream.EventBus
}

// New builds a Router over the given bus.
func New(bus stream.EventBus) *Router {
	return &Router{bus: bus}
}

// Route classifies the decision, builds the matching envelope, and
// publishes it. It returns the destination so callers can count outcomes.
func (r *Router) Route(ctx context.Context, customerID string, d domain.Decision) (Destination, error) {
	dest := Classify(d)

	var envelope any
	switch dest {
	case DestFraudAlert:
		log.Info().
			Str("transaction", d.TransactionID).
			Int64("confidence_pct", confidencePercent(d)).
			Int("agents", len(d.Opinions)).
			Msg("AI FRAUD DETECTED")
		envelope = NewFraudAlert(d)
	case DestHumanReview:
		log.Info().
			Str("transaction", d.TransactionID).
			Int64("confidence_pct", confidencePercent(d)).
			Msg("AI REVIEW NEEDED")
		envelope = NewReviewCase(d)
	default:
		log.Debug().
			Str("transaction", d.TransactionID).
			Int64("confidence_pct", confidencePercent(d)).
			Msg("AI APPROVED")
		envelope = NewApproval(d)
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return dest, fmt.Errorf("encoding %s envelope for %s: %w", dest, d.TransactionID, err)
	}
	if err := r.bus.Publish(ctx, dest.Topic(), customerID, payload); err != nil {
		return dest, fmt.Errorf("publishing %s for %s: %w", dest, d.TransactionID, err)
	}
	return dest, nil
}
