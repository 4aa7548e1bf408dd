package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/consensus"
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/enrich"
	"github.com/fraudlens/fraudlens/internal/pipeline"
	"github.com/fraudlens/fraudlens/internal/route"
	"github.com/fraudlens/fraudlens/internal/scorer"
	"github.com/fraudlens/fraudlens/internal/state"
	"github.com/fraudlens/fraudlens/internal/stream"
)

var (
	produceScenario string
	produceFixture  string
	produceLive     bool
	produceSettle   time.Duration
)

const (
	scenarioNormal    = "normal"
	scenarioRapidFire = "rapid-fire"
	scenarioUnusual   = "unusual-amount"
)

// scenarioFixture is the YAML shape of a producer scenario file. Fields left
// out of the file keep their built-in values.
type scenarioFixture struct {
	Profiles      []profileFixture `yaml:"profiles"`
	Normal        normalFixture    `yaml:"normal"`
	RapidFire     rapidFireFixture `yaml:"rapid_fire"`
	UnusualAmount unusualFixture   `yaml:"unusual_amount"`
}

type profileFixture struct {
	CustomerID        string   `yaml:"customer_id"`
	AverageAmount     float64  `yaml:"average_amount"`
	DailyLimit        float64  `yaml:"daily_limit"`
	TypicalCategories []string `yaml:"typical_categories"`
	PrimaryLocation   string   `yaml:"primary_location"`
	RiskTier          string   `yaml:"risk_tier"`
}

type normalFixture struct {
	Count int `yaml:"count"`
}

type rapidFireFixture struct {
	Customer string        `yaml:"customer"`
	Count    int           `yaml:"count"`
	Amount   float64       `yaml:"amount"`
	Spread   time.Duration `yaml:"spread"`
}

type unusualFixture struct {
	Customer   string  `yaml:"customer"`
	Multiplier float64 `yaml:"multiplier"`
	Category   string  `yaml:"category"`
}

func (p profileFixture) toDomain() domain.Profile {
	return domain.Profile{
		CustomerID:        p.CustomerID,
		AverageAmount:     p.AverageAmount,
		DailyLimit:        p.DailyLimit,
		TypicalCategories: p.TypicalCategories,
		PrimaryLocation:   p.PrimaryLocation,
		RiskTier:          domain.RiskTier(p.RiskTier),
		UpdatedAt:         domain.NewEventTime(time.Now()),
	}
}

func (f scenarioFixture) profile(customerID string) (profileFixture, bool) {
	for _, p := range f.Profiles {
		if p.CustomerID == customerID {
			return p, true
		}
	}
	return profileFixture{}, false
}

func (f scenarioFixture) validate() error {
	if len(f.Profiles) == 0 {
		return fmt.Errorf("scenario fixture has no profiles")
	}
	for _, p := range f.Profiles {
		if err := p.toDomain().Validate(); err != nil {
			return fmt.Errorf("scenario fixture: %w", err)
		}
	}
	if f.Normal.Count <= 0 {
		return fmt.Errorf("scenario fixture: normal count must be positive, got %d", f.Normal.Count)
	}
	if _, ok := f.profile(f.RapidFire.Customer); !ok {
		return fmt.Errorf("scenario fixture: rapid-fire customer %q has no profile", f.RapidFire.Customer)
	}
	if f.RapidFire.Count <= 0 || f.RapidFire.Amount <= 0 || f.RapidFire.Spread <= 0 {
		return fmt.Errorf("scenario fixture: rapid-fire needs positive count, amount, and spread")
	}
	if _, ok := f.profile(f.UnusualAmount.Customer); !ok {
		return fmt.Errorf("scenario fixture: unusual-amount customer %q has no profile", f.UnusualAmount.Customer)
	}
	if f.UnusualAmount.Multiplier <= 1 {
		return fmt.Errorf("scenario fixture: unusual-amount multiplier must exceed 1, got %.2f", f.UnusualAmount.Multiplier)
	}
	return nil
}

// defaultScenarios seeds five customers across five cities and the two
// attack patterns the screening stage is tuned for.
func defaultScenarios() scenarioFixture {
	return scenarioFixture{
		Profiles: []profileFixture{
			{CustomerID: "CUST-001", AverageAmount: 85.50, DailyLimit: 2000, TypicalCategories: []string{"GROCERY", "GAS_STATION", "RESTAURANT"}, PrimaryLocation: "New York", RiskTier: "low"},
			{CustomerID: "CUST-002", AverageAmount: 220.00, DailyLimit: 5000, TypicalCategories: []string{"RETAIL", "RESTAURANT"}, PrimaryLocation: "Los Angeles", RiskTier: "low"},
			{CustomerID: "CUST-003", AverageAmount: 65.25, DailyLimit: 1500, TypicalCategories: []string{"GROCERY", "ONLINE"}, PrimaryLocation: "Chicago", RiskTier: "medium"},
			{CustomerID: "CUST-004", AverageAmount: 150.75, DailyLimit: 3000, TypicalCategories: []string{"GAS_STATION", "RETAIL"}, PrimaryLocation: "Houston", RiskTier: "low"},
			{CustomerID: "CUST-005", AverageAmount: 310.00, DailyLimit: 8000, TypicalCategories: []string{"ONLINE", "RETAIL", "RESTAURANT"}, PrimaryLocation: "Phoenix", RiskTier: "high"},
		},
		Normal:        normalFixture{Count: 10},
		RapidFire:     rapidFireFixture{Customer: "CUST-003", Count: 9, Amount: 49.99, Spread: 30 * time.Second},
		UnusualAmount: unusualFixture{Customer: "CUST-002", Multiplier: 5, Category: "LUXURY_GOODS"},
	}
}

// loadScenarioFixture layers the file at path over the built-in scenarios.
func loadScenarioFixture(path string) (scenarioFixture, error) {
	fixture := defaultScenarios()
	if path == "" {
		return fixture, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture, fmt.Errorf("failed to read scenario fixture: %w", err)
	}
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fixture, fmt.Errorf("failed to parse scenario fixture: %w", err)
	}
	if err := fixture.validate(); err != nil {
		return fixture, err
	}
	return fixture, nil
}

func selectScenarios(name string) ([]string, error) {
	switch name {
	case "all":
		return []string{scenarioNormal, scenarioRapidFire, scenarioUnusual}, nil
	case scenarioNormal, scenarioRapidFire, scenarioUnusual:
		return []string{name}, nil
	}
	return nil, fmt.Errorf("unknown scenario %q (want normal, rapid-fire, unusual-amount, or all)", name)
}

func runProduce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fixture, err := loadScenarioFixture(produceFixture)
	if err != nil {
		return err
	}
	scenarios, err := selectScenarios(produceScenario)
	if err != nil {
		return err
	}

	scoring := offlineScorer()
	if produceLive {
		if scoring, err = buildScorer(cfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	busCfg := stream.DefaultBusConfig()
	busCfg.Consumer.PollInterval = 5 * time.Millisecond
	bus := stream.NewMemoryBus(busCfg)
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}

	enricher := enrich.New(state.NewMemoryProfileStore(), state.NewMemoryVelocityStore(cfg.Velocity.Window), cfg.Velocity.HighThreshold)
	registry := agents.NewRegistry(scoring)
	coordinator := consensus.New(registry, scoring, consensus.NewPool(cfg.PoolSize()), consensus.Config{
		FraudThreshold:    cfg.Risk.FraudThreshold,
		VelocityThreshold: cfg.Velocity.HighThreshold,
	})

	pl, err := pipeline.New(pipeline.Options{
		Bus:         bus,
		Enricher:    enricher,
		Coordinator: coordinator,
		Router:      route.New(bus),
		Partitions:  cfg.Bus.Partitions,
		Window:      cfg.Velocity.Window,
		Group:       "producer-pipeline",
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	if err := pl.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	report := newDecisionReport()
	for _, topic := range []string{stream.TopicFraudAlerts, stream.TopicHumanReview, stream.TopicApproved} {
		if err := bus.Subscribe(ctx, topic, "producer-report", report.handler(topic)); err != nil {
			return fmt.Errorf("subscribing report to %s: %w", topic, err)
		}
	}

	fmt.Printf("Seeding %d customer profiles\n", len(fixture.Profiles))
	for _, p := range fixture.Profiles {
		payload, err := json.Marshal(p.toDomain())
		if err != nil {
			return fmt.Errorf("encoding profile %s: %w", p.CustomerID, err)
		}
		if err := bus.Publish(ctx, stream.TopicProfiles, p.CustomerID, payload); err != nil {
			return fmt.Errorf("publishing profile %s: %w", p.CustomerID, err)
		}
	}
	if !waitFor(ctx, 5*time.Second, func() bool {
		n, err := enricher.ProfileCount(ctx)
		return err == nil && n >= int64(len(fixture.Profiles))
	}) {
		return fmt.Errorf("profiles never materialized")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	published := 0
	for _, name := range scenarios {
		n, err := publishScenario(ctx, bus, fixture, name, rng)
		if err != nil {
			return err
		}
		published += n
	}

	if !waitFor(ctx, produceSettle, func() bool { return report.seen() >= published }) {
		log.Warn().
			Int("published", published).
			Int("routed", report.seen()).
			Msg("Not every event was routed before the settle deadline")
	}

	fmt.Printf("\nSummary (%d events published):\n", published)
	for _, topic := range []string{stream.TopicFraudAlerts, stream.TopicHumanReview, stream.TopicApproved} {
		fmt.Printf("  %-22s %d\n", topic, report.count(topic))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pl.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Pipeline shutdown failed")
	}
	return bus.Stop(shutdownCtx)
}

// publishScenario publishes one scenario's events and returns how many.
func publishScenario(ctx context.Context, bus stream.EventBus, fixture scenarioFixture, name string, rng *rand.Rand) (int, error) {
	switch name {
	case scenarioNormal:
		fmt.Printf("Scenario %s: %d routine purchases\n", name, fixture.Normal.Count)
		for i := 0; i < fixture.Normal.Count; i++ {
			p := fixture.Profiles[i%len(fixture.Profiles)]
			event := domain.Event{
				TransactionID:    uuid.New().String(),
				CustomerID:       p.CustomerID,
				Amount:           round2(p.AverageAmount * (0.6 + rng.Float64()*0.8)),
				Currency:         "USD",
				MerchantID:       fmt.Sprintf("MERCH-%03d", rng.Intn(900)+100),
				MerchantCategory: p.TypicalCategories[rng.Intn(len(p.TypicalCategories))],
				Location:         p.PrimaryLocation,
				Timestamp:        domain.NewEventTime(time.Now()),
			}
			if err := publishEvent(ctx, bus, event); err != nil {
				return i, err
			}
		}
		return fixture.Normal.Count, nil

	case scenarioRapidFire:
		fmt.Printf("Scenario %s: %d card tests from %s inside %s\n",
			name, fixture.RapidFire.Count, fixture.RapidFire.Customer, fixture.RapidFire.Spread)
		start := time.Now()
		step := fixture.RapidFire.Spread / time.Duration(fixture.RapidFire.Count)
		for i := 0; i < fixture.RapidFire.Count; i++ {
			event := domain.Event{
				TransactionID:    uuid.New().String(),
				CustomerID:       fixture.RapidFire.Customer,
				Amount:           fixture.RapidFire.Amount,
				Currency:         "USD",
				MerchantID:       "MERCH-WEB-999",
				MerchantCategory: "ONLINE",
				Location:         "Unknown Location",
				Timestamp:        domain.NewEventTime(start.Add(time.Duration(i) * step)),
			}
			if err := publishEvent(ctx, bus, event); err != nil {
				return i, err
			}
		}
		return fixture.RapidFire.Count, nil

	case scenarioUnusual:
		p, _ := fixture.profile(fixture.UnusualAmount.Customer)
		amount := round2(p.AverageAmount * fixture.UnusualAmount.Multiplier)
		fmt.Printf("Scenario %s: %s spends %.2f against a %.2f average\n",
			name, p.CustomerID, amount, p.AverageAmount)
		event := domain.Event{
			TransactionID:    uuid.New().String(),
			CustomerID:       p.CustomerID,
			Amount:           amount,
			Currency:         "USD",
			MerchantID:       "MERCH-LUX-001",
			MerchantCategory: fixture.UnusualAmount.Category,
			Location:         p.PrimaryLocation,
			Timestamp:        domain.NewEventTime(time.Now()),
		}
		if err := publishEvent(ctx, bus, event); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unknown scenario %q", name)
}

func publishEvent(ctx context.Context, bus stream.EventBus, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", event.TransactionID, err)
	}
	if err := bus.Publish(ctx, stream.TopicTransactions, event.CustomerID, payload); err != nil {
		return fmt.Errorf("publishing event %s: %w", event.TransactionID, err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// waitFor polls cond until it holds, the timeout lapses, or ctx is done.
func waitFor(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return cond()
		case <-time.After(25 * time.Millisecond):
		}
	}
	return cond()
}

// routedEnvelope is the slice of the output envelopes the report prints.
type routedEnvelope struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
	Confidence    int64  `json:"confidence"`
}

type decisionReport struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
}

func newDecisionReport() *decisionReport {
	return &decisionReport{counts: make(map[string]int)}
}

// handler prints each routed decision as it lands and tallies it.
func (r *decisionReport) handler(topic string) stream.MessageHandler {
	return func(_ context.Context, message *stream.Message) error {
		var envelope routedEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			return fmt.Errorf("decoding %s envelope: %w", topic, err)
		}
		r.mu.Lock()
		r.counts[topic]++
		r.total++
		r.mu.Unlock()
		fmt.Printf("  %-22s %-10s %-38s confidence=%d%%\n",
			topic, message.Key, envelope.TransactionID, envelope.Confidence)
		return nil
	}
}

func (r *decisionReport) seen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *decisionReport) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[topic]
}

var (
	velocityLine = regexp.MustCompile(`Real-time velocity: (\d+) transactions`)
	amountLine   = regexp.MustCompile(`Transaction [^:]*: ([0-9]+\.[0-9]{2}) `)
	averageLine  = regexp.MustCompile(`average ([0-9]+\.[0-9]{2}),`)
)

// offlineScorer scores prompts with a fixed heuristic over the embedded
// streaming context, standing in for a model backend. Risk rises with
// window velocity, an unrecognized location, and spend far above the
// customer's average.
func offlineScorer() scorer.Scorer {
	return scorer.ScorerFunc(func(_ context.Context, prompt string) (scorer.Scored, error) {
		risk := 0.15
		findings := []string{"routine purchase pattern"}

		if m := velocityLine.FindStringSubmatch(prompt); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 3 {
				risk += 0.5
				findings = append(findings, fmt.Sprintf("%d transactions inside the velocity window", n))
			}
		}
		if strings.Contains(prompt, `"Unknown Location"`) {
			risk += 0.2
			findings = append(findings, "transaction location not recognized")
		}
		amount, okAmount := matchFloat(amountLine, prompt)
		average, okAverage := matchFloat(averageLine, prompt)
		if okAmount && okAverage && amount > 3*average {
			risk += 0.35
			findings = append(findings, fmt.Sprintf("amount %.2f far above the %.2f average", amount, average))
		}
		if risk > 0.95 {
			risk = 0.95
		}

		action := "approve"
		if risk >= 0.6 {
			action = "block and escalate"
		}
		raw := fmt.Sprintf("RISK_SCORE: %.2f\nREASONING: %s\nRECOMMENDATION: %s\n",
			risk, strings.Join(findings, "; "), action)
		return scorer.Parse(raw), nil
	})
}

func matchFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
