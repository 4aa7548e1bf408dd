package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/consensus"
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/route"
)

var (
	analyzeFile     string
	analyzeTxn      string
	analyzeCustomer string
	analyzeAmount   float64
	analyzeCurrency string
	analyzeMerchant string
	analyzeCategory string
	analyzeLocation string
	analyzeLive     bool
	analyzeJSON     bool
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	event, err := analyzeEvent()
	if err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	scoring := offlineScorer()
	if analyzeLive {
		if scoring, err = buildScorer(cfg); err != nil {
			return err
		}
	}
	registry := agents.NewRegistry(scoring)
	coordinator := consensus.New(registry, scoring, consensus.NewPool(cfg.PoolSize()), consensus.Config{
		FraudThreshold:    cfg.Risk.FraudThreshold,
		VelocityThreshold: cfg.Velocity.HighThreshold,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// A one-shot event has no stream behind it, so the pass runs with an
	// empty streaming context.
	decision := coordinator.Decide(ctx, domain.Enrich(event, nil, nil))
	destination := route.Classify(decision)

	if analyzeJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			domain.Decision
			Destination string `json:"destination"`
		}{decision, destination.String()})
	}

	printDecision(event, decision, destination)
	return nil
}

// analyzeEvent builds the event from --file when given, flags otherwise.
func analyzeEvent() (domain.Event, error) {
	if analyzeFile != "" {
		var (
			data []byte
			err  error
		)
		if analyzeFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(analyzeFile)
		}
		if err != nil {
			return domain.Event{}, fmt.Errorf("failed to read event: %w", err)
		}
		var event domain.Event
		if err := json.Unmarshal(data, &event); err != nil {
			return domain.Event{}, fmt.Errorf("failed to parse event: %w", err)
		}
		if event.Timestamp.Time().IsZero() {
			event.Timestamp = domain.NewEventTime(time.Now())
		}
		return event, nil
	}

	event := domain.Event{
		TransactionID:    analyzeTxn,
		CustomerID:       analyzeCustomer,
		Amount:           analyzeAmount,
		Currency:         analyzeCurrency,
		MerchantID:       analyzeMerchant,
		MerchantCategory: analyzeCategory,
		Location:         analyzeLocation,
		Timestamp:        domain.NewEventTime(time.Now()),
	}
	if event.TransactionID == "" {
		event.TransactionID = "TXN-" + uuid.New().String()[:8]
	}
	return event, nil
}

func printDecision(event domain.Event, decision domain.Decision, destination route.Destination) {
	verdict := "LEGITIMATE"
	if decision.Fraud {
		verdict = "FRAUD"
	}

	fmt.Printf("Transaction %s (%s, %.2f %s)\n",
		event.TransactionID, event.CustomerID, event.Amount, event.Currency)
	fmt.Printf("Verdict:     %s\n", verdict)
	fmt.Printf("Final risk:  %.2f\n", decision.FinalRisk)
	fmt.Printf("Confidence:  %.0f%%\n", decision.Confidence*100)
	fmt.Printf("Destination: %s\n", destination)
	fmt.Printf("Reason:      %s\n", decision.Reason)

	fmt.Printf("\nAgent opinions (%d):\n", len(decision.Opinions))
	for _, opinion := range decision.Opinions {
		fmt.Printf("  %-22s risk=%.2f  %s\n",
			opinion.AgentID, opinion.RiskScore, opinion.Recommendation)
	}
}
