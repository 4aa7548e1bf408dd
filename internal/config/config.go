// Package config loads and validates the fraudlens runtime configuration
// from YAML, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Scorer     ScorerConfig     `yaml:"scorer"`
	Bus        BusConfig        `yaml:"bus"`
	Velocity   VelocityConfig   `yaml:"velocity"`
	Risk       RiskConfig       `yaml:"risk"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Pool       PoolConfig       `yaml:"pool"`
	HTTP       HTTPConfig       `yaml:"http"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
}

// ScorerConfig selects and tunes the external scoring backend.
type ScorerConfig struct {
	Profile        string        `yaml:"profile"`         // cloud or local
	BaseURL        string        `yaml:"base_url"`        // chat-completions base URL
	Model          string        `yaml:"model"`           // model identifier sent upstream
	CredentialsEnv string        `yaml:"credentials_env"` // env var holding the bearer secret
	Timeout        time.Duration `yaml:"timeout"`         // per-call wall clock bound
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	RPS            int           `yaml:"rps"`   // sustained request rate toward the backend
	Burst          int           `yaml:"burst"` // burst capacity above RPS
	Circuit        CircuitConfig `yaml:"circuit"`
	Cache          CacheConfig   `yaml:"cache"`
}

// CircuitConfig tunes the scorer circuit breaker.
type CircuitConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive failures to open
	OpenInterval     time.Duration `yaml:"open_interval"`     // time open before half-open probes
	HalfOpenMax      uint32        `yaml:"half_open_max"`     // probes allowed while half-open
}

// CacheConfig tunes the score cache that keeps replayed events from
// re-issuing identical scorer calls.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// BusConfig points the pipeline at its message bus.
type BusConfig struct {
	Type           string        `yaml:"type"`      // memory today
	Bootstrap      string        `yaml:"bootstrap"` // broker endpoint
	Partitions     int           `yaml:"partitions"`
	CommitInterval time.Duration `yaml:"commit_interval"`
}

// VelocityConfig tunes the tumbling-window velocity aggregation.
type VelocityConfig struct {
	Window        time.Duration `yaml:"window"`         // tumbling window size
	HighThreshold int64         `yaml:"high_threshold"` // count above which velocity is high
}

// RiskConfig holds the fraud decision threshold.
type RiskConfig struct {
	FraudThreshold float64 `yaml:"fraud_threshold"`
}

// ConfidenceConfig holds the routing confidence bands.
type ConfidenceConfig struct {
	FraudAlertThreshold float64 `yaml:"fraud_alert_threshold"`
	NeedsHumanLower     float64 `yaml:"needs_human_lower"`
	NeedsHumanUpper     float64 `yaml:"needs_human_upper"`
}

// PoolConfig sizes the analyzer worker pool shared across partitions.
// Size 0 derives partitions x 5 so every partition can fan out its five
// analyzers without queueing behind another partition.
type PoolConfig struct {
	Size int `yaml:"size"`
}

// HTTPConfig tunes the control-plane HTTP server.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// FeedbackConfig selects the analyst-feedback store. An empty DSN keeps
// feedback in memory.
type FeedbackConfig struct {
	PostgresDSN string        `yaml:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProfilesConfig selects the profile-table backing. An empty address keeps
// the materialized table in memory.
type ProfilesConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Scorer: ScorerConfig{
			Profile:        "local",
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.1",
			CredentialsEnv: "FRAUDLENS_SCORER_KEY",
			Timeout:        15 * time.Second,
			MaxTokens:      500,
			Temperature:    0.1,
			RPS:            10,
			Burst:          20,
			Circuit: CircuitConfig{
				FailureThreshold: 5,
				OpenInterval:     30 * time.Second,
				HalfOpenMax:      2,
			},
			Cache: CacheConfig{
				Enabled: false,
				TTL:     10 * time.Minute,
			},
		},
		Bus: BusConfig{
			Type:           "memory",
			Bootstrap:      "localhost:9092",
			Partitions:     4,
			CommitInterval: time.Second,
		},
		Velocity: VelocityConfig{
			Window:        5 * time.Minute,
			HighThreshold: 3,
		},
		Risk: RiskConfig{
			FraudThreshold: 0.6,
		},
		Confidence: ConfidenceConfig{
			FraudAlertThreshold: 0.8,
			NeedsHumanLower:     0.3,
			NeedsHumanUpper:     0.7,
		},
		Pool: PoolConfig{Size: 0},
		HTTP: HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Feedback: FeedbackConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ScorerCredentials resolves the scorer secret from the configured
// environment variable. Empty is valid for the local profile.
func (c *Config) ScorerCredentials() string {
	if c.Scorer.CredentialsEnv == "" {
		return ""
	}
	return os.Getenv(c.Scorer.CredentialsEnv)
}

// PoolSize resolves the effective analyzer pool size.
func (c *Config) PoolSize() int {
	if c.Pool.Size > 0 {
		return c.Pool.Size
	}
	return c.Bus.Partitions * 5
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Scorer.Profile {
	case "cloud", "local":
	default:
		return fmt.Errorf("scorer profile must be cloud or local, got %q", c.Scorer.Profile)
	}
	if c.Scorer.BaseURL == "" {
		return fmt.Errorf("scorer base_url must be set")
	}
	if c.Scorer.Timeout <= 0 {
		return fmt.Errorf("scorer timeout must be positive, got %s", c.Scorer.Timeout)
	}
	if c.Scorer.RPS <= 0 {
		return fmt.Errorf("scorer rps must be positive, got %d", c.Scorer.RPS)
	}
	if c.Scorer.Burst < c.Scorer.RPS {
		return fmt.Errorf("scorer burst %d must be at least rps %d", c.Scorer.Burst, c.Scorer.RPS)
	}

	switch c.Bus.Type {
	case "memory":
	default:
		return fmt.Errorf("unsupported bus type %q", c.Bus.Type)
	}
	if c.Bus.Partitions <= 0 {
		return fmt.Errorf("bus partitions must be positive, got %d", c.Bus.Partitions)
	}
	if c.Bus.CommitInterval <= 0 {
		return fmt.Errorf("bus commit_interval must be positive, got %s", c.Bus.CommitInterval)
	}

	if c.Velocity.Window <= 0 {
		return fmt.Errorf("velocity window must be positive, got %s", c.Velocity.Window)
	}
	if c.Velocity.HighThreshold < 0 {
		return fmt.Errorf("velocity high_threshold must be non-negative, got %d", c.Velocity.HighThreshold)
	}

	if c.Risk.FraudThreshold <= 0 || c.Risk.FraudThreshold > 1 {
		return fmt.Errorf("risk fraud_threshold must be in (0, 1], got %f", c.Risk.FraudThreshold)
	}
	if c.Confidence.FraudAlertThreshold <= 0 || c.Confidence.FraudAlertThreshold > 1 {
		return fmt.Errorf("confidence fraud_alert_threshold must be in (0, 1], got %f", c.Confidence.FraudAlertThreshold)
	}
	if c.Confidence.NeedsHumanLower < 0 || c.Confidence.NeedsHumanUpper > 1 ||
		c.Confidence.NeedsHumanLower >= c.Confidence.NeedsHumanUpper {
		return fmt.Errorf("confidence needs_human band [%f, %f] is not a valid open interval",
			c.Confidence.NeedsHumanLower, c.Confidence.NeedsHumanUpper)
	}

	if c.Pool.Size < 0 {
		return fmt.Errorf("pool size must be non-negative, got %d", c.Pool.Size)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTP.Port)
	}
	return nil
}
