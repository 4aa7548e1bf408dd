package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioFixture_DefaultsWhenNoPath(t *testing.T) {
	fixture, err := loadScenarioFixture("")
	require.NoError(t, err)

	assert.Len(t, fixture.Profiles, 5)
	assert.Equal(t, "CUST-003", fixture.RapidFire.Customer)
	assert.NoError(t, fixture.validate())
}

func TestLoadScenarioFixture_FileOverridesSelectively(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	fixture := "rapid_fire:\n  customer: CUST-001\n  count: 12\n  amount: 9.99\n  spread: 45s\n"
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	loaded, err := loadScenarioFixture(path)
	require.NoError(t, err)

	assert.Equal(t, "CUST-001", loaded.RapidFire.Customer)
	assert.Equal(t, 12, loaded.RapidFire.Count)
	assert.Equal(t, 45*time.Second, loaded.RapidFire.Spread, "duration strings should parse")
	assert.Len(t, loaded.Profiles, 5, "untouched sections keep their built-in values")
	assert.Equal(t, 10, loaded.Normal.Count)
}

func TestLoadScenarioFixture_RejectsUnknownCustomer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	fixture := "rapid_fire:\n  customer: CUST-404\n  count: 9\n  amount: 5.00\n  spread: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	_, err := loadScenarioFixture(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUST-404")
}

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios("all")
	require.NoError(t, err)
	assert.Equal(t, []string{scenarioNormal, scenarioRapidFire, scenarioUnusual}, all)

	one, err := selectScenarios(scenarioRapidFire)
	require.NoError(t, err)
	assert.Equal(t, []string{scenarioRapidFire}, one)

	_, err = selectScenarios("bogus")
	require.Error(t, err)
}

func TestOfflineScorer_RaisesRiskOnStreamingSignals(t *testing.T) {
	s := offlineScorer()
	ctx := context.Background()

	calm, err := s.Score(ctx, `Transaction TXN-1: 80.00 USD at merchant MERCH-100 (GROCERY), location "New York", time 2026-03-10T14:00:00
Customer profile: average 85.50, daily limit 2000.00, risk tier low, home location "New York"`)
	require.NoError(t, err)
	assert.Less(t, calm.RiskScore, 0.3, "routine purchase should score low")

	spree, err := s.Score(ctx, `Real-time velocity: 7 transactions in the last 5 minutes
Transaction TXN-2: 49.99 USD at merchant MERCH-WEB-999 (ONLINE), location "Unknown Location", time 2026-03-10T14:00:30`)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, spree.RiskScore, 0.6, "velocity plus unknown location should cross the fraud threshold")

	outlier, err := s.Score(ctx, `Transaction TXN-3: 1100.00 USD at merchant MERCH-LUX-001 (LUXURY_GOODS), location "Los Angeles", time 2026-03-10T14:05:00
Customer profile: average 220.00, daily limit 5000.00, risk tier low, home location "Los Angeles"`)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, outlier.RiskScore, 0.01, "triple-average spend alone stays below the threshold")
}
