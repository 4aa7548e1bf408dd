package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.Velocity.Window)
	assert.Equal(t, int64(3), cfg.Velocity.HighThreshold)
	assert.InDelta(t, 0.6, cfg.Risk.FraudThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.Confidence.FraudAlertThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Confidence.NeedsHumanLower, 1e-9)
	assert.InDelta(t, 0.7, cfg.Confidence.NeedsHumanUpper, 1e-9)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraudlens.yaml")
	content := `
scorer:
  profile: cloud
  base_url: https://api.groq.com/openai
  model: llama-3.3-70b-versatile
  rps: 20
  burst: 40
bus:
  partitions: 8
velocity:
  high_threshold: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cloud", cfg.Scorer.Profile)
	assert.Equal(t, "https://api.groq.com/openai", cfg.Scorer.BaseURL)
	assert.Equal(t, 8, cfg.Bus.Partitions)
	assert.Equal(t, int64(5), cfg.Velocity.HighThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Velocity.Window, "unset fields keep defaults")
	assert.Equal(t, 40, cfg.PoolSize(), "derived pool size follows partitions x 5")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown scorer profile", func(c *Config) { c.Scorer.Profile = "hybrid" }},
		{"empty scorer base url", func(c *Config) { c.Scorer.BaseURL = "" }},
		{"zero scorer timeout", func(c *Config) { c.Scorer.Timeout = 0 }},
		{"burst below rps", func(c *Config) { c.Scorer.Burst = c.Scorer.RPS - 1 }},
		{"unsupported bus type", func(c *Config) { c.Bus.Type = "pulsar" }},
		{"zero partitions", func(c *Config) { c.Bus.Partitions = 0 }},
		{"negative window", func(c *Config) { c.Velocity.Window = -time.Minute }},
		{"fraud threshold above one", func(c *Config) { c.Risk.FraudThreshold = 1.5 }},
		{"inverted review band", func(c *Config) {
			c.Confidence.NeedsHumanLower = 0.7
			c.Confidence.NeedsHumanUpper = 0.3
		}},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestScorerCredentials_FromEnv(t *testing.T) {
	cfg := Default()
	cfg.Scorer.CredentialsEnv = "FRAUDLENS_TEST_KEY"
	t.Setenv("FRAUDLENS_TEST_KEY", "sk-test-secret")
	assert.Equal(t, "sk-test-secret", cfg.ScorerCredentials())

	cfg.Scorer.CredentialsEnv = ""
	assert.Empty(t, cfg.ScorerCredentials())
}
