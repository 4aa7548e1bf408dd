package agents

import (
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/scorer"
)

// Fixed analyzer identifiers. The set is closed; the coordinator and the
// reporting surfaces iterate over it in this order.
const (
	IDBehavior   = "behavior"
	IDPattern    = "pattern"
	IDRisk       = "risk"
	IDGeographic = "geographic"
	IDTemporal   = "temporal"
)

// Registry holds the five analyzers in their fixed order.
type Registry struct {
	analyzers []*Analyzer
	byID      map[string]*Analyzer
}

// NewRegistry constructs the closed analyzer set around one scorer. Each
// analyzer seeds its knowledge log with the heuristics of its specialty.
func NewRegistry(s scorer.Scorer) *Registry {
	analyzers := []*Analyzer{
		{
			id:             IDBehavior,
			specialization: "customer-behavior",
			title:          "Customer Behavior Analyst",
			weight:         1.2,
			focus: []string{
				"How does the velocity pattern compare with the customer's baseline spending?",
				"Does the amount deviate from typical spending?",
				"Are there red flags in transaction frequency or timing?",
				"Is this consistent with the customer's normal behavior?",
			},
			scorer: s,
			knowledge: newKnowledgeLog([]KnowledgeEntry{
				{Key: "normal_transaction_hours", Value: "6-23"},
				{Key: "suspicious_frequency_threshold", Value: "5_per_hour"},
				{Key: "amount_deviation_threshold", Value: "3x_average"},
				{Key: "location_change_threshold", Value: "500_miles"},
			}),
		},
		{
			id:             IDPattern,
			specialization: "attack-patterns",
			title:          "Fraud Pattern Detector",
			weight:         1.3,
			focus: []string{
				"Does the velocity match known attack vectors such as card testing or credential stuffing?",
				"Are there card-testing indicators such as small or round amounts?",
				"Could this be part of an automated fraud campaign or bot activity?",
				"Do the signals match known fraud-ring signatures?",
			},
			scorer: s,
			knowledge: newKnowledgeLog([]KnowledgeEntry{
				{Key: "round_amounts", Value: "100,200,500,1000"},
				{Key: "testing_amounts", Value: "1,5,10,25"},
				{Key: "fraud_hotspots", Value: "high_risk_zip_codes"},
				{Key: "velocity_thresholds", Value: "rapid_succession_patterns"},
			}),
		},
		{
			id:             IDRisk,
			specialization: "financial-risk",
			title:          "Financial Risk Assessor",
			weight:         1.1,
			focus: []string{
				"How does the amount compare with the customer's average and daily limit?",
				"Is the merchant category high risk?",
				"Given velocity and profile, what is the fraud probability versus financial impact?",
				"Does the customer's risk tier raise or lower the assessment?",
			},
			scorer: s,
			knowledge: newKnowledgeLog([]KnowledgeEntry{
				{Key: "high_risk_merchants", Value: "gambling,crypto,cash_advance"},
				{Key: "risk_multipliers", Value: "international=1.5,off_hours=1.2"},
				{Key: "amount_thresholds", Value: "low=100,medium=1000,high=5000"},
				{Key: "geographic_risk", Value: "country_risk_scores"},
			}),
		},
		{
			id:             IDGeographic,
			specialization: "location-risk",
			title:          "Geographic Risk Analyst",
			weight:         1.0,
			focus: []string{
				"Does the location match the customer's primary location?",
				"Under high velocity, is rapid travel between the observed locations physically possible?",
				"Are there signs of VPN, proxy, or masked locations?",
				"Do cross-border factors raise the risk?",
			},
			scorer: s,
			knowledge: newKnowledgeLog([]KnowledgeEntry{
				{Key: "high_risk_regions", Value: "known_fraud_hotspots"},
				{Key: "travel_speed_limits", Value: "max_reasonable_travel_mph"},
				{Key: "cross_border_flags", Value: "international_transaction_risks"},
				{Key: "location_spoofing", Value: "vpn_proxy_indicators"},
			}),
		},
		{
			id:             IDTemporal,
			specialization: "timing-patterns",
			title:          "Temporal Pattern Analyst",
			weight:         1.0,
			focus: []string{
				"Does the velocity indicate automated or scripted activity?",
				"Are the transaction intervals suspiciously fast or regular?",
				"Is the hour of day consistent with normal human behavior?",
				"Do burst patterns match known attack timing?",
			},
			scorer: s,
			knowledge: newKnowledgeLog([]KnowledgeEntry{
				{Key: "normal_hours", Value: "6am-11pm_local_time"},
				{Key: "velocity_thresholds", Value: "max_transactions_per_hour"},
				{Key: "automation_indicators", Value: "sub_second_intervals"},
				{Key: "timezone_risks", Value: "location_time_mismatches"},
			}),
		},
	}

	byID := make(map[string]*Analyzer, len(analyzers))
	for _, a := range analyzers {
		byID[a.id] = a
	}
	return &Registry{analyzers: analyzers, byID: byID}
}

// All returns the analyzers in their fixed order.
func (r *Registry) All() []*Analyzer {
	out := make([]*Analyzer, len(r.analyzers))
	copy(out, r.analyzers)
	return out
}

// Get returns the analyzer with the given id.
func (r *Registry) Get(id string) (*Analyzer, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// RecordOutcome fans an analyst outcome into every analyzer's knowledge log.
func (r *Registry) RecordOutcome(f domain.Feedback) {
	for _, a := range r.analyzers {
		a.knowledge.RecordOutcome(f)
	}
}

// AgentInfo describes one analyzer for reporting surfaces.
type AgentInfo struct {
	ID             string   `json:"id"`
	Specialization string   `json:"specialization"`
	Title          string   `json:"title"`
	Weight         float64  `json:"weight"`
	Focus          []string `json:"focus"`
}

// Describe returns the static analyzer descriptions in fixed order.
func (r *Registry) Describe() []AgentInfo {
	out := make([]AgentInfo, 0, len(r.analyzers))
	for _, a := range r.analyzers {
		out = append(out, AgentInfo{
			ID:             a.id,
			Specialization: a.specialization,
			Title:          a.title,
			Weight:         a.weight,
			Focus:          a.Focus(),
		})
	}
	return out
}
