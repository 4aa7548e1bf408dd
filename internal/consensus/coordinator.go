// Package consensus orchestrates the three-phase decision pass for one
// enriched event: independent analysis across the five specialists,
// conditional collaborative refinement, and weighted synthesis into a single
// Decision.
package consensus

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/scorer"
)

// ConsensusID identifies the coordinator's own summarizing opinion.
const ConsensusID = "consensus"

// errorReason marks the synthetic technical-error outcome.
const errorReason = "Technical error during analysis"

const (
	// collabWeight applies to collaboration and consensus opinions in the
	// weighted mean; phase-1 opinions carry their analyzer's weight.
	collabWeight = 0.8

	// disagreementSpread is the max-min phase-1 risk spread that forces
	// collaboration.
	disagreementSpread = 0.4

	velocityBonus      = 0.25
	unusualBonus       = 0.20
	highTierBonus      = 0.10
	unusualMultiplier  = 3.0
	confidenceJoinBump = 0.1
)

// Config carries the decision thresholds.
type Config struct {
	// FraudThreshold marks a final risk at or above it as fraud.
	FraudThreshold float64
	// VelocityThreshold marks a joined velocity strictly above it as high.
	VelocityThreshold int64
}

// Coordinator runs decision passes. It is a pure function of the enriched
// event and the injected scorer: no state survives a pass, so replays with
// identical scorer responses reproduce the same fraud flag, final risk, and
// confidence.
type Coordinator struct {
	registry          *agents.Registry
	scorer            scorer.Scorer
	pool              *Pool
	fraudThreshold    float64
	velocityThreshold int64
}

// New builds a Coordinator over the analyzer registry. The scorer handles
// the consensus summary; the pool bounds all concurrent scorer calls.
func New(registry *agents.Registry, s scorer.Scorer, pool *Pool, cfg Config) *Coordinator {
	if cfg.FraudThreshold <= 0 {
		cfg.FraudThreshold = 0.6
	}
	if cfg.VelocityThreshold <= 0 {
		cfg.VelocityThreshold = 3
	}
	if pool == nil {
		pool = NewPool(0)
	}
	return &Coordinator{
		registry:          registry,
		scorer:            s,
		pool:              pool,
		fraudThreshold:    cfg.FraudThreshold,
		velocityThreshold: cfg.VelocityThreshold,
	}
}

// Decide runs the three phases for one enriched event and returns exactly
// one Decision. A panic anywhere in the pass degrades to the synthetic
// technical-error decision so the event still reaches a router branch.
func (c *Coordinator) Decide(ctx context.Context, enriched domain.EnrichedEvent) (decision domain.Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("transaction", enriched.Event.TransactionID).
				Msg("Decision pass failed")
			decision = ErrorDecision(enriched.Event.TransactionID, fmt.Sprint(r))
		}
	}()

	log.Info().
		Str("transaction", enriched.Event.TransactionID).
		Str("context", enriched.DescribeContext()).
		Msg("Starting multi-analyst investigation")

	phase1 := c.independentAnalysis(ctx, enriched)
	collabs := c.collaborate(ctx, enriched, phase1)
	consensusOp := c.buildConsensus(ctx, enriched, phase1)
	decision = c.synthesize(enriched, phase1, collabs, consensusOp)

	verdict := "LEGITIMATE"
	if decision.Fraud {
		verdict = "FRAUD DETECTED"
	}
	log.Info().
		Str("transaction", decision.TransactionID).
		Str("verdict", verdict).
		Float64("confidence", decision.Confidence).
		Dur("duration", time.Since(start)).
		Int("opinions", len(decision.Opinions)).
		Msg("Investigation complete")
	return decision
}

// ErrorDecision is the synthetic outcome for a failed decision pass:
// presumed fraudulent at half confidence with no opinions, which the router
// sends to human review.
func ErrorDecision(transactionID, detail string) domain.Decision {
	return domain.Decision{
		TransactionID: transactionID,
		Fraud:         true,
		FinalRisk:     0.5,
		Confidence:    0.5,
		Reason:        errorReason,
		Explanation:   fmt.Sprintf("Error occurred: %s. Manual review required.", detail),
		Opinions:      []domain.Opinion{},
		AnalyzedAt:    time.Now(),
	}
}

// IsErrorDecision reports whether d is the synthetic outcome of a failed
// decision pass.
func IsErrorDecision(d domain.Decision) bool {
	return d.Reason == errorReason
}

// runAll executes tasks through the pool, waits for all of them, and
// re-raises the first worker panic on the calling goroutine so the
// pass-level recovery can degrade to the technical-error decision.
func (c *Coordinator) runAll(tasks []func()) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var panicked interface{}

	for _, task := range tasks {
		wg.Add(1)
		go func(task func()) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if panicked == nil {
						panicked = r
					}
					mu.Unlock()
				}
			}()
			c.pool.Run(task)
		}(task)
	}
	wg.Wait()

	if panicked != nil {
		panic(panicked)
	}
}

// independentAnalysis fans the enriched event out to all five analyzers and
// waits for every opinion. Failed analyzers contribute neutral opinions.
func (c *Coordinator) independentAnalysis(ctx context.Context, enriched domain.EnrichedEvent) []domain.Opinion {
	analyzers := c.registry.All()
	opinions := make([]domain.Opinion, len(analyzers))

	tasks := make([]func(), len(analyzers))
	for i, analyzer := range analyzers {
		i, analyzer := i, analyzer
		tasks[i] = func() { opinions[i] = analyzer.Analyze(ctx, enriched) }
	}
	c.runAll(tasks)

	log.Debug().
		Str("transaction", enriched.Event.TransactionID).
		Int("opinions", len(opinions)).
		Msg("Phase 1 complete")
	return opinions
}

// requiresCollaboration reports whether phase 2 refinement fires: on
// analyst disagreement, on high velocity, or whenever a profile is joined.
func (c *Coordinator) requiresCollaboration(enriched domain.EnrichedEvent, phase1 []domain.Opinion) bool {
	if enriched.HighVelocity(c.velocityThreshold) || enriched.Profile != nil {
		return true
	}
	if len(phase1) < 2 {
		return false
	}
	maxRisk, minRisk := phase1[0].RiskScore, phase1[0].RiskScore
	for _, op := range phase1[1:] {
		maxRisk = math.Max(maxRisk, op.RiskScore)
		minRisk = math.Min(minRisk, op.RiskScore)
	}
	return maxRisk-minRisk > disagreementSpread
}

// collaborate runs the conditional refinement streams. The velocity stream
// asks pattern and temporal about automated attacks; the profile stream asks
// behavior and risk whether the transaction fits the baseline. Pairs run
// concurrently; the returned order is fixed.
func (c *Coordinator) collaborate(ctx context.Context, enriched domain.EnrichedEvent, phase1 []domain.Opinion) []domain.Opinion {
	if !c.requiresCollaboration(enriched, phase1) {
		log.Debug().
			Str("transaction", enriched.Event.TransactionID).
			Msg("Analysts agree, skipping collaboration")
		return nil
	}

	type ask struct {
		analyzerID string
		question   string
	}
	var asks []ask
	if enriched.HighVelocity(c.velocityThreshold) {
		q := fmt.Sprintf("%d events in 5 minutes - does this align with automated attack patterns?", *enriched.Velocity)
		asks = append(asks, ask{agents.IDPattern, q}, ask{agents.IDTemporal, q})
	}
	if enriched.Profile != nil {
		q := fmt.Sprintf("Customer has an average transaction of %.2f and a %s risk tier - does this transaction fit their profile?",
			enriched.Profile.AverageAmount, enriched.Profile.RiskTier)
		asks = append(asks, ask{agents.IDBehavior, q}, ask{agents.IDRisk, q})
	}
	if len(asks) == 0 {
		return nil
	}

	opinions := make([]domain.Opinion, len(asks))
	tasks := make([]func(), 0, len(asks))
	for i, a := range asks {
		analyzer, ok := c.registry.Get(a.analyzerID)
		if !ok {
			continue
		}
		i, analyzer, question := i, analyzer, a.question
		tasks = append(tasks, func() { opinions[i] = analyzer.Collaborate(ctx, enriched, question) })
	}
	c.runAll(tasks)

	log.Debug().
		Str("transaction", enriched.Event.TransactionID).
		Int("collaborations", len(opinions)).
		Msg("Phase 2 complete")
	return opinions
}

// buildConsensus asks the scorer to summarize the phase-1 findings under the
// streaming context. A scorer failure yields a neutral consensus opinion.
func (c *Coordinator) buildConsensus(ctx context.Context, enriched domain.EnrichedEvent, phase1 []domain.Opinion) domain.Opinion {
	var findings strings.Builder
	for _, op := range phase1 {
		fmt.Fprintf(&findings, "%s (Risk: %.2f): %s\n", op.AgentID, op.RiskScore, op.Reasoning)
	}

	var b strings.Builder
	b.WriteString("You are the lead fraud investigator reviewing findings from your team of 5 specialists.\n\n")
	b.WriteString("Transaction:\n")
	b.WriteString(enriched.Event.Describe())
	b.WriteString("\n\n")
	b.WriteString("Streaming context:\n")
	b.WriteString(enriched.DescribeContext())
	b.WriteString("\n\n")
	b.WriteString("Analyst findings:\n")
	b.WriteString(findings.String())
	b.WriteString("\n")
	b.WriteString("Based on all analyses, provide a final consensus:\n")
	b.WriteString("- Do the analysts generally agree or disagree?\n")
	b.WriteString("- What is the overall fraud risk?\n")
	b.WriteString("- What are the key factors driving the decision?\n\n")
	b.WriteString("Format:\n")
	b.WriteString("RISK_SCORE: [0.0-1.0]\n")
	b.WriteString("REASONING: [Consensus analysis]\n")
	b.WriteString("RECOMMENDATION: [Final action]\n")

	scored, err := c.scorer.Score(ctx, b.String())
	if err != nil {
		log.Error().
			Err(err).
			Str("transaction", enriched.Event.TransactionID).
			Msg("Consensus building failed, using neutral opinion")
		return domain.Opinion{
			AgentID:        ConsensusID,
			Specialization: "consensus-building",
			Analysis:       fmt.Sprintf("Consensus building failed: %v", err),
			RiskScore:      0.5,
			Reasoning:      "Technical error occurred during consensus building",
			Recommendation: "manual review required",
			Timestamp:      time.Now(),
		}
	}
	return domain.Opinion{
		AgentID:        ConsensusID,
		Specialization: "consensus-building",
		Analysis:       scored.Raw,
		RiskScore:      scored.RiskScore,
		Reasoning:      scored.Reasoning,
		Recommendation: scored.Recommendation,
		Timestamp:      time.Now(),
	}
}

// synthesize folds every opinion into the final Decision: weighted mean,
// streaming bonus, fraud flag, agreement-driven confidence, and the
// explanation trail.
func (c *Coordinator) synthesize(enriched domain.EnrichedEvent, phase1, collabs []domain.Opinion, consensusOp domain.Opinion) domain.Decision {
	analyzers := c.registry.All()

	all := make([]domain.Opinion, 0, len(phase1)+len(collabs)+1)
	weights := make([]float64, 0, len(phase1)+len(collabs)+1)
	for i, op := range phase1 {
		all = append(all, op)
		weights = append(weights, analyzers[i].Weight())
	}
	for _, op := range collabs {
		all = append(all, op)
		weights = append(weights, collabWeight)
	}
	all = append(all, consensusOp)
	weights = append(weights, collabWeight)

	base := weightedMean(all, weights)
	bonus := c.streamingBonus(enriched)
	finalRisk := math.Min(1.0, base+bonus)
	fraud := finalRisk >= c.fraudThreshold
	confidence := c.confidence(all, fraud, enriched)

	reason := "Transaction appears legitimate"
	if fraud {
		reason = "AI agents with streaming context detected fraud"
	}

	return domain.Decision{
		TransactionID: enriched.Event.TransactionID,
		Fraud:         fraud,
		FinalRisk:     finalRisk,
		Confidence:    confidence,
		Reason:        reason,
		Explanation:   c.explain(enriched, all, finalRisk, fraud),
		Opinions:      all,
		AnalyzedAt:    time.Now(),
	}
}

func weightedMean(opinions []domain.Opinion, weights []float64) float64 {
	var total, totalWeight float64
	for i, op := range opinions {
		total += op.RiskScore * weights[i]
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		return 0.5
	}
	return total / totalWeight
}

// streamingBonus adds risk for enrichment signals the analyzers may have
// underweighted. It is zero exactly when neither join produced a signal.
func (c *Coordinator) streamingBonus(enriched domain.EnrichedEvent) float64 {
	var bonus float64
	if enriched.HighVelocity(c.velocityThreshold) {
		bonus += velocityBonus
	}
	if enriched.UnusualAmount(unusualMultiplier) {
		bonus += unusualBonus
	}
	if enriched.HighRiskTier() {
		bonus += highTierBonus
	}
	return bonus
}

// confidence maps the agreement ratio over every opinion onto the base
// confidence ladder and bumps it for each live streaming signal.
func (c *Coordinator) confidence(opinions []domain.Opinion, fraud bool, enriched domain.EnrichedEvent) float64 {
	agreeing := 0
	for _, op := range opinions {
		if op.IndicatesFraud(c.fraudThreshold) == fraud {
			agreeing++
		}
	}
	ratio := float64(agreeing) / float64(len(opinions))

	var confidence float64
	switch {
	case ratio >= 0.8:
		confidence = 0.9
	case ratio >= 0.6:
		confidence = 0.7
	case ratio >= 0.4:
		confidence = 0.5
	default:
		confidence = 0.3
	}

	if enriched.HighVelocity(c.velocityThreshold) {
		confidence += confidenceJoinBump
	}
	if enriched.Profile != nil {
		confidence += confidenceJoinBump
	}
	return math.Min(1.0, confidence)
}

func (c *Coordinator) explain(enriched domain.EnrichedEvent, opinions []domain.Opinion, finalRisk float64, fraud bool) string {
	var b strings.Builder
	b.WriteString("AI agents analyzed this transaction with real-time streaming context:\n\n")

	b.WriteString("STREAMING CONTEXT:\n")
	for _, line := range strings.Split(enriched.DescribeContext(), "\n") {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("AI AGENT ANALYSIS:\n")
	for _, op := range opinions {
		fmt.Fprintf(&b, "- %s (%.0f%% risk): %s\n", op.AgentID, op.RiskScore*100, op.Reasoning)
	}

	fmt.Fprintf(&b, "\nFinal risk score: %.1f%%\n", finalRisk*100)
	if fraud {
		b.WriteString("Decision: FRAUD DETECTED\n")
	} else {
		b.WriteString("Decision: LEGITIMATE\n")
	}
	b.WriteString("Intelligence Sources: Real-time velocity, customer profiles, temporal patterns")
	return b.String()
}
