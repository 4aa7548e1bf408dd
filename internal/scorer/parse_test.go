package scorer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredResponse(t *testing.T) {
	raw := "RISK_SCORE: 0.85\n" +
		"REASONING: Nine transactions in five minutes from an unknown location.\n" +
		"RECOMMENDATION: Block the card and alert the customer."

	scored := Parse(raw)

	assert.Equal(t, raw, scored.Raw, "raw text should be preserved verbatim")
	assert.InDelta(t, 0.85, scored.RiskScore, 1e-9)
	assert.Equal(t, "Nine transactions in five minutes from an unknown location.", scored.Reasoning)
	assert.Equal(t, "Block the card and alert the customer.", scored.Recommendation)
}

func TestParseRiskScoreIndentedLine(t *testing.T) {
	scored := Parse("  RISK_SCORE: 0.42  \nREASONING: ok")
	assert.InDelta(t, 0.42, scored.RiskScore, 1e-9, "leading whitespace should not hide the score line")
}

func TestParseRiskScoreClamped(t *testing.T) {
	assert.Equal(t, 1.0, Parse("RISK_SCORE: 7.5").RiskScore, "scores above one clamp to one")
	assert.Equal(t, 0.0, Parse("RISK_SCORE: -0.3").RiskScore, "negative scores clamp to zero")
}

func TestParseMalformedScoreFallsBackToKeywords(t *testing.T) {
	scored := Parse("RISK_SCORE: very high\nThis transaction looks fraudulent to me.")
	assert.InDelta(t, 0.8, scored.RiskScore, 1e-9,
		"an unparseable score line should fall through to keyword classification")
}

func TestParseKeywordClasses(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{"high risk phrase", "This is HIGH RISK behavior", 0.8},
		{"fraudulent", "Almost certainly fraudulent activity", 0.8},
		{"suspicious", "The pattern is suspicious", 0.8},
		{"medium risk phrase", "Medium risk overall", 0.6},
		{"unusual", "An unusual purchase for this customer", 0.6},
		{"concerning", "Somewhat concerning velocity", 0.6},
		{"low risk phrase", "Low risk, routine purchase", 0.2},
		{"normal", "Everything looks normal here", 0.2},
		{"legitimate", "A legitimate grocery run", 0.2},
		{"no keywords", "The model declined to elaborate", 0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Parse(tc.raw).RiskScore, 1e-9)
		})
	}
}

func TestParseKeywordPrecedence(t *testing.T) {
	// A response mentioning several classes resolves to the riskiest one.
	scored := Parse("Looks normal at first glance but ultimately suspicious")
	assert.InDelta(t, 0.8, scored.RiskScore, 1e-9)
}

func TestParseReasoningRunsToEnd(t *testing.T) {
	scored := Parse("RISK_SCORE: 0.3\nREASONING: Amount within the usual range.")
	assert.Equal(t, "Amount within the usual range.", scored.Reasoning)
	assert.Equal(t, "Standard fraud review recommended", scored.Recommendation,
		"a missing recommendation should yield the stock phrase")
}

func TestParseReasoningFallbackTruncates(t *testing.T) {
	long := strings.Repeat("x", 250)
	scored := Parse(long)

	require.Len(t, []rune(scored.Reasoning), 201, "fallback is 200 characters plus the ellipsis")
	assert.True(t, strings.HasSuffix(scored.Reasoning, "…"))
	assert.Equal(t, strings.Repeat("x", 200), strings.TrimSuffix(scored.Reasoning, "…"))
}

func TestParseReasoningFallbackShortText(t *testing.T) {
	scored := Parse("terse model")
	assert.Equal(t, "terse model…", scored.Reasoning,
		"short responses keep their full text before the ellipsis")
}

func TestParseReasoningFallbackMultibyte(t *testing.T) {
	long := strings.Repeat("é", 250)
	scored := Parse(long)
	assert.Equal(t, strings.Repeat("é", 200)+"…", scored.Reasoning,
		"truncation must count characters, not bytes")
}

func TestStaticScorerReplaysFixedResponse(t *testing.T) {
	s := StaticScorer{Raw: "RISK_SCORE: 0.2\nREASONING: fine\nRECOMMENDATION: approve"}

	scored, err := s.Score(context.Background(), "ignored prompt")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, scored.RiskScore, 1e-9)
	assert.Equal(t, "approve", scored.Recommendation)
}
