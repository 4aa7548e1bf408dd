package domain

import "time"

// Opinion is one analyzer's scored response to an enriched event. Opinions
// are retained only inside the owning Decision.
type Opinion struct {
	AgentID        string    `json:"agentId"`
	Specialization string    `json:"specialization"`
	Analysis       string    `json:"analysis"`
	RiskScore      float64   `json:"riskScore"`
	Reasoning      string    `json:"reasoning"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}

// Confidence derives the opinion's confidence. Analyzers have no separate
// confidence axis: confidence tracks risk, capped at 1.
func (o Opinion) Confidence() float64 {
	if o.RiskScore > 1 {
		return 1
	}
	return o.RiskScore
}

// IndicatesFraud reports whether this opinion leans fraudulent under the
// given risk threshold.
func (o Opinion) IndicatesFraud(threshold float64) bool {
	return o.RiskScore > threshold
}

// Decision is the single per-event outcome: fraud flag, confidence, the
// explanation trail, and every contributing opinion.
type Decision struct {
	TransactionID string    `json:"transactionId"`
	Fraud         bool      `json:"fraud"`
	FinalRisk     float64   `json:"finalRisk"`
	Confidence    float64   `json:"confidence"`
	Reason        string    `json:"reason"`
	Explanation   string    `json:"explanation"`
	Opinions      []Opinion `json:"opinions"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
}

// HighConfidence reports whether confidence clears the given floor
// (inclusive).
func (d Decision) HighConfidence(threshold float64) bool {
	return d.Confidence >= threshold
}

// NeedsHuman reports whether confidence falls strictly inside the
// human-review band.
func (d Decision) NeedsHuman(lower, upper float64) bool {
	return d.Confidence > lower && d.Confidence < upper
}
