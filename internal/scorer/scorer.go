// Package scorer provides the external text-scoring capability the
// analyzers consume: a chat-completions client for the cloud and local
// profiles, the fixed response-parsing rules, and the resilience wrappers
// (circuit breaker, rate limiter, score cache) around the raw backend.
package scorer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// ErrScorerUnavailable marks a transient failure of the underlying scoring
// service. Callers treat it as a neutral opinion rather than propagating.
var ErrScorerUnavailable = fmt.Errorf("scorer unavailable")

// Scored is a scoring response: the raw text plus the fields parsed from it.
type Scored struct {
	Raw            string  `json:"raw"`
	RiskScore      float64 `json:"riskScore"`
	Reasoning      string  `json:"reasoning"`
	Recommendation string  `json:"recommendation"`
}

// Scorer scores a prompt. Implementations block until the service responds,
// the context expires, or the call fails.
type Scorer interface {
	Score(ctx context.Context, prompt string) (Scored, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, prompt string) (Scored, error)

// Score invokes the function.
func (f ScorerFunc) Score(ctx context.Context, prompt string) (Scored, error) {
	return f(ctx, prompt)
}

// StaticScorer replays one fixed response for every prompt. It backs
// offline runs and tests where no model endpoint is reachable.
type StaticScorer struct {
	Raw string
}

// Score parses and returns the fixed response.
func (s StaticScorer) Score(context.Context, string) (Scored, error) {
	return Parse(s.Raw), nil
}

// Parse extracts the risk score, reasoning, and recommendation from a raw
// scoring response. The rules are fixed:
//
//	RISK_SCORE:  numeric token on its line, clamped to [0, 1]
//	fallback     keyword classes over the lowercased text
//	otherwise    0.5
func Parse(raw string) Scored {
	return Scored{
		Raw:            raw,
		RiskScore:      parseRiskScore(raw),
		Reasoning:      parseReasoning(raw),
		Recommendation: parseRecommendation(raw),
	}
}

func parseRiskScore(raw string) float64 {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "RISK_SCORE:") {
			continue
		}
		token := strings.TrimSpace(strings.TrimPrefix(trimmed, "RISK_SCORE:"))
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			break
		}
		if value < 0 {
			return 0
		}
		if value > 1 {
			return 1
		}
		return value
	}
	return keywordScore(raw)
}

// keywordScore classifies free-form responses that carry no parseable
// RISK_SCORE line.
func keywordScore(raw string) float64 {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "high risk"),
		strings.Contains(lower, "fraudulent"),
		strings.Contains(lower, "suspicious"):
		return 0.8
	case strings.Contains(lower, "medium risk"),
		strings.Contains(lower, "unusual"),
		strings.Contains(lower, "concerning"):
		return 0.6
	case strings.Contains(lower, "low risk"),
		strings.Contains(lower, "normal"),
		strings.Contains(lower, "legitimate"):
		return 0.2
	}
	return 0.5
}

func parseReasoning(raw string) string {
	idx := strings.Index(raw, "REASONING:")
	if idx < 0 {
		runes := []rune(raw)
		if len(runes) > 200 {
			runes = runes[:200]
		}
		return string(runes) + "…"
	}
	rest := raw[idx+len("REASONING:"):]
	if end := strings.Index(rest, "RECOMMENDATION:"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func parseRecommendation(raw string) string {
	idx := strings.Index(raw, "RECOMMENDATION:")
	if idx < 0 {
		return "Standard fraud review recommended"
	}
	return strings.TrimSpace(raw[idx+len("RECOMMENDATION:"):])
}
