package scorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResilientConfig tunes the protection around a scoring backend.
type ResilientConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to open the circuit
	OpenInterval     time.Duration // time open before half-open probes
	HalfOpenMax      uint32        // probes allowed while half-open
	RPS              int
	Burst            int
	CallTimeout      time.Duration
}

// ResilientScorer wraps a Scorer with a circuit breaker, a rate limiter, and
// a per-call timeout. When the circuit is open or the limiter cannot admit
// the call, it fails fast with ErrScorerUnavailable so analyzers fall back
// to neutral opinions instead of queueing behind a dead backend.
type ResilientScorer struct {
	inner   Scorer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewResilientScorer builds the protection stack around inner.
func NewResilientScorer(inner Scorer, config ResilientConfig) *ResilientScorer {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenInterval <= 0 {
		config.OpenInterval = 30 * time.Second
	}
	if config.HalfOpenMax == 0 {
		config.HalfOpenMax = 1
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 15 * time.Second
	}
	if config.RPS <= 0 {
		config.RPS = 10
	}
	if config.Burst < config.RPS {
		config.Burst = config.RPS
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.HalfOpenMax,
		Timeout:     config.OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Scorer circuit state changed")
		},
	}

	return &ResilientScorer{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
		timeout: config.CallTimeout,
	}
}

// Score admits the call through the limiter and breaker, bounding it with
// the configured timeout.
func (s *ResilientScorer) Score(ctx context.Context, prompt string) (Scored, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Scored{}, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.Score(callCtx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Scored{}, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
		}
		return Scored{}, err
	}
	return result.(Scored), nil
}

// State exposes the breaker state for health reporting.
func (s *ResilientScorer) State() string {
	return s.breaker.State().String()
}
