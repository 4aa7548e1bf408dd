package agents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/scorer"
)

func testEnriched() domain.EnrichedEvent {
	velocity := int64(6)
	return domain.EnrichedEvent{
		Event: domain.Event{
			TransactionID:    "TXN-1001",
			CustomerID:       "CUST-001",
			Amount:           54,
			Currency:         "USD",
			MerchantID:       "MERCH-9",
			MerchantCategory: "ONLINE",
			Location:         "Unknown Location",
			Timestamp:        domain.NewEventTime(time.Date(2026, 3, 14, 2, 15, 0, 0, time.UTC)),
		},
		Profile: &domain.Profile{
			CustomerID:        "CUST-001",
			AverageAmount:     253,
			DailyLimit:        2000,
			TypicalCategories: []string{"GROCERY", "RETAIL"},
			PrimaryLocation:   "Los Angeles",
			RiskTier:          domain.RiskTierLow,
		},
		Velocity: &velocity,
	}
}

func fixedScorer(captured *string, raw string) scorer.Scorer {
	return scorer.ScorerFunc(func(ctx context.Context, prompt string) (scorer.Scored, error) {
		if captured != nil {
			*captured = prompt
		}
		return scorer.Parse(raw), nil
	})
}

func TestRegistryClosedSet(t *testing.T) {
	registry := NewRegistry(scorer.StaticScorer{Raw: "RISK_SCORE: 0.5"})

	all := registry.All()
	require.Len(t, all, 5)

	wantOrder := []string{IDBehavior, IDPattern, IDRisk, IDGeographic, IDTemporal}
	wantWeight := map[string]float64{
		IDBehavior:   1.2,
		IDPattern:    1.3,
		IDRisk:       1.1,
		IDGeographic: 1.0,
		IDTemporal:   1.0,
	}
	for i, a := range all {
		assert.Equal(t, wantOrder[i], a.ID(), "analyzer order is fixed")
		assert.Equal(t, wantWeight[a.ID()], a.Weight())
		assert.Equal(t, 4, a.Knowledge().Len(), "each analyzer seeds four domain heuristics")
	}

	pattern, ok := registry.Get(IDPattern)
	require.True(t, ok)
	assert.Equal(t, "attack-patterns", pattern.Specialization())

	_, ok = registry.Get("astrology")
	assert.False(t, ok)
}

func TestAnalyzePromptCarriesEnrichment(t *testing.T) {
	var prompt string
	registry := NewRegistry(fixedScorer(&prompt, "RISK_SCORE: 0.9\nREASONING: velocity burst\nRECOMMENDATION: block"))
	behavior, _ := registry.Get(IDBehavior)

	opinion := behavior.Analyze(context.Background(), testEnriched())

	assert.Contains(t, prompt, "TXN-1001", "prompt must embed the event")
	assert.Contains(t, prompt, "Real-time velocity: 6 transactions in the last 5 minutes",
		"prompt must embed the joined velocity")
	assert.Contains(t, prompt, "Los Angeles", "prompt must embed the joined profile")
	assert.Contains(t, prompt, "RISK_SCORE: [0.0-1.0]", "prompt must request the parseable format")

	assert.Equal(t, IDBehavior, opinion.AgentID)
	assert.Equal(t, "customer-behavior", opinion.Specialization)
	assert.InDelta(t, 0.9, opinion.RiskScore, 1e-9)
	assert.Equal(t, "velocity burst", opinion.Reasoning)
	assert.Equal(t, "block", opinion.Recommendation)
	assert.False(t, opinion.Timestamp.IsZero())
}

func TestAnalyzeWithoutJoinsReportsNoContext(t *testing.T) {
	var prompt string
	registry := NewRegistry(fixedScorer(&prompt, "RISK_SCORE: 0.2"))
	temporal, _ := registry.Get(IDTemporal)

	enriched := testEnriched()
	enriched.Profile = nil
	enriched.Velocity = nil
	temporal.Analyze(context.Background(), enriched)

	assert.Contains(t, prompt, "No streaming context available for this transaction")
}

func TestAnalyzeFailureYieldsNeutralOpinion(t *testing.T) {
	failing := scorer.ScorerFunc(func(ctx context.Context, prompt string) (scorer.Scored, error) {
		return scorer.Scored{}, scorer.ErrScorerUnavailable
	})
	registry := NewRegistry(failing)
	risk, _ := registry.Get(IDRisk)

	opinion := risk.Analyze(context.Background(), testEnriched())

	assert.Equal(t, "risk-error", opinion.AgentID)
	assert.Equal(t, "financial-risk", opinion.Specialization, "error opinions keep the specialization")
	assert.InDelta(t, 0.5, opinion.RiskScore, 1e-9, "failures score neutral")
	assert.Equal(t, "manual review required", opinion.Recommendation)
	assert.Contains(t, opinion.Reasoning, "scorer unavailable")
}

func TestCollaborateEmbedsQuestion(t *testing.T) {
	var prompt string
	registry := NewRegistry(fixedScorer(&prompt, "RISK_SCORE: 0.8\nREASONING: agreed\nRECOMMENDATION: escalate"))
	pattern, _ := registry.Get(IDPattern)

	question := "9 events in 5 minutes - does this align with automated attack patterns?"
	opinion := pattern.Collaborate(context.Background(), testEnriched(), question)

	assert.Contains(t, prompt, question)
	assert.Contains(t, prompt, "TXN-1001")
	assert.Equal(t, "pattern-collab", opinion.AgentID)
	assert.InDelta(t, 0.8, opinion.RiskScore, 1e-9)
}

func TestCollaborateFailureKeepsErrorSuffix(t *testing.T) {
	failing := scorer.ScorerFunc(func(ctx context.Context, prompt string) (scorer.Scored, error) {
		return scorer.Scored{}, scorer.ErrScorerUnavailable
	})
	registry := NewRegistry(failing)
	geo, _ := registry.Get(IDGeographic)

	opinion := geo.Collaborate(context.Background(), testEnriched(), "does the timing make geographic sense?")
	assert.Equal(t, "geographic-error", opinion.AgentID)
	assert.InDelta(t, 0.5, opinion.RiskScore, 1e-9)
}

func TestRecordOutcomeReachesEveryAnalyzer(t *testing.T) {
	registry := NewRegistry(scorer.StaticScorer{Raw: "RISK_SCORE: 0.5"})

	registry.RecordOutcome(domain.Feedback{
		TransactionID: "TXN-77",
		ActualFraud:   true,
		Feedback:      "confirmed stolen card",
	})

	for _, a := range registry.All() {
		entries := a.Knowledge().Snapshot()
		require.Len(t, entries, 5, "four seeds plus one outcome")
		last := entries[len(entries)-1]
		assert.Equal(t, "learning_TXN-77", last.Key)
		assert.True(t, strings.Contains(last.Value, "actualFraud=true"))
	}
}

func TestKnowledgeSnapshotIsACopy(t *testing.T) {
	registry := NewRegistry(scorer.StaticScorer{Raw: "RISK_SCORE: 0.5"})
	behavior, _ := registry.Get(IDBehavior)

	snapshot := behavior.Knowledge().Snapshot()
	snapshot[0].Value = "tampered"

	fresh := behavior.Knowledge().Snapshot()
	assert.NotEqual(t, "tampered", fresh[0].Value, "snapshots must not alias the log")
}

func TestDescribeListsFiveSpecialists(t *testing.T) {
	registry := NewRegistry(scorer.StaticScorer{Raw: "RISK_SCORE: 0.5"})

	infos := registry.Describe()
	require.Len(t, infos, 5)
	assert.Equal(t, "customer-behavior", infos[0].Specialization)
	assert.Equal(t, "Fraud Pattern Detector", infos[1].Title)
	for _, info := range infos {
		assert.NotEmpty(t, info.Focus, "every analyzer documents its focus areas")
	}
}
