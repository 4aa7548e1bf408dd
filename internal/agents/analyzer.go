// Package agents defines the five fraud-analysis specializations. Each
// analyzer shares one structure (id, weight, focus areas, prompt builders)
// and differs only in the data that drives it; the coordinator iterates over
// the set rather than dispatching on concrete types.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/scorer"
)

// Analyzer is one fraud-analysis specialist. It builds specialist prompts
// around the enriched event, delegates scoring, and converts the parsed
// response into an Opinion carrying its id and specialization.
type Analyzer struct {
	id             string
	specialization string
	title          string
	weight         float64
	focus          []string
	scorer         scorer.Scorer
	knowledge      *KnowledgeLog
}

// ID returns the fixed analyzer identifier.
func (a *Analyzer) ID() string { return a.id }

// Specialization returns the analyzer's domain tag.
func (a *Analyzer) Specialization() string { return a.specialization }

// Weight returns the consensus weight of this analyzer's phase-1 opinions.
func (a *Analyzer) Weight() float64 { return a.weight }

// Focus returns the analyzer's focus areas for reporting surfaces.
func (a *Analyzer) Focus() []string {
	out := make([]string, len(a.focus))
	copy(out, a.focus)
	return out
}

// Knowledge returns the analyzer's append-only knowledge log.
func (a *Analyzer) Knowledge() *KnowledgeLog { return a.knowledge }

// Analyze scores the enriched event through the analyzer's specialist lens.
// A scorer failure yields a neutral opinion tagged with the "-error" suffix;
// it never propagates.
func (a *Analyzer) Analyze(ctx context.Context, enriched domain.EnrichedEvent) domain.Opinion {
	log.Debug().
		Str("analyzer", a.id).
		Str("transaction", enriched.Event.TransactionID).
		Msg("Starting analysis")

	scored, err := a.scorer.Score(ctx, a.analysisPrompt(enriched))
	if err != nil {
		log.Error().
			Err(err).
			Str("analyzer", a.id).
			Str("transaction", enriched.Event.TransactionID).
			Msg("Analysis failed, returning neutral opinion")
		return a.errorOpinion(err)
	}

	opinion := a.opinion(a.id, scored)
	log.Info().
		Str("analyzer", a.id).
		Str("transaction", enriched.Event.TransactionID).
		Float64("risk", opinion.RiskScore).
		Msg("Analysis complete")
	return opinion
}

// Collaborate answers another analyst's question about the enriched event.
// The resulting opinion id carries the "-collab" suffix. Failure policy
// matches Analyze.
func (a *Analyzer) Collaborate(ctx context.Context, enriched domain.EnrichedEvent, question string) domain.Opinion {
	scored, err := a.scorer.Score(ctx, a.collaborationPrompt(enriched, question))
	if err != nil {
		log.Error().
			Err(err).
			Str("analyzer", a.id).
			Str("transaction", enriched.Event.TransactionID).
			Msg("Collaboration failed, returning neutral opinion")
		return a.errorOpinion(err)
	}
	return a.opinion(a.id+"-collab", scored)
}

func (a *Analyzer) opinion(id string, scored scorer.Scored) domain.Opinion {
	return domain.Opinion{
		AgentID:        id,
		Specialization: a.specialization,
		Analysis:       scored.Raw,
		RiskScore:      scored.RiskScore,
		Reasoning:      scored.Reasoning,
		Recommendation: scored.Recommendation,
		Timestamp:      time.Now(),
	}
}

func (a *Analyzer) errorOpinion(err error) domain.Opinion {
	return domain.Opinion{
		AgentID:        a.id + "-error",
		Specialization: a.specialization,
		Analysis:       fmt.Sprintf("Analysis failed: %v", err),
		RiskScore:      0.5,
		Reasoning:      fmt.Sprintf("Error occurred during analysis: %v", err),
		Recommendation: "manual review required",
		Timestamp:      time.Now(),
	}
}

func (a *Analyzer) analysisPrompt(enriched domain.EnrichedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert %s specializing in real-time fraud detection.\n\n", a.title)

	b.WriteString("STREAMING INTELLIGENCE:\n")
	b.WriteString(enriched.DescribeContext())
	b.WriteString("\n\n")

	b.WriteString("TRANSACTION TO ANALYZE:\n")
	b.WriteString(enriched.Event.Describe())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "As a %s, focus on:\n", strings.ToUpper(a.title))
	for i, item := range a.focus {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	b.WriteString("\n")

	b.WriteString("Provide your analysis in this format:\n")
	b.WriteString("RISK_SCORE: [0.0-1.0]\n")
	b.WriteString("REASONING: [Your detailed analysis]\n")
	b.WriteString("RECOMMENDATION: [Specific action to take]\n\n")
	b.WriteString("Be thorough but concise.\n")
	return b.String()
}

func (a *Analyzer) collaborationPrompt(enriched domain.EnrichedEvent, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s fraud detection specialist.\n", a.title)
	fmt.Fprintf(&b, "Another analyst is asking: %s\n\n", question)

	b.WriteString("Transaction details:\n")
	b.WriteString(enriched.Event.Describe())
	b.WriteString("\n\n")

	b.WriteString("Streaming context:\n")
	b.WriteString(enriched.DescribeContext())
	b.WriteString("\n\n")

	b.WriteString("Provide your expert opinion with a risk score (0.0 to 1.0) and reasoning.\n")
	b.WriteString("Format your response as:\n")
	b.WriteString("RISK_SCORE: [0.0-1.0]\n")
	b.WriteString("REASONING: [Your detailed analysis]\n")
	b.WriteString("RECOMMENDATION: [What action to take]\n")
	return b.String()
}
