package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/fraudlens/fraudlens/internal/config"
	httpmetrics "github.com/fraudlens/fraudlens/internal/interfaces/http"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	// Initialize metrics registry
	httpmetrics.InitializeMetrics()

	rootCmd := &cobra.Command{
		Use:   "fraudlens",
		Short: "FraudLens - real-time fraud screening with multi-agent consensus",
		Long: `FraudLens screens card-authorization events in real time.

Each event is enriched with the customer's profile and a five-minute
velocity count, analyzed by five specialist agents in a three-phase
consensus pass, and routed by confidence to fraud-alerts, human-review,
or approved-transactions. Analyst feedback flows back into the agents'
knowledge logs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(flagLogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", flagLogLevel, err)
			}
			zerolog.SetGlobalLevel(level)
			cmd.Flags().Visit(func(f *pflag.Flag) {
				log.Debug().Str("flag", f.Name).Str("value", f.Value.String()).Msg("Flag override")
			})
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the screening pipeline and the control-plane server",
		Long: `Start the full screening stack: event bus, profile and velocity
enrichment, the five-agent consensus stage, the confidence router, the
analyst-feedback sink, and the HTTP control plane with the live
decision feed.

Examples:
  fraudlens serve
  fraudlens serve --config config/fraudlens.yaml
  fraudlens serve --log-level debug`,
		RunE: runServe,
	}

	produceCmd := &cobra.Command{
		Use:   "produce",
		Short: "Drive scenario traffic through an in-process pipeline",
		Long: `Seed customer profiles and stream generated traffic through a
self-contained pipeline, printing every routed decision. The bus is
in-process, so this command runs its own pipeline rather than feeding a
separate serve instance.

Scenarios:
  normal          routine purchases drawn from the seeded profiles
  rapid-fire      a burst of small card tests from one customer
  unusual-amount  one purchase far above the customer's average
  all             every scenario in order (default)

Examples:
  fraudlens produce
  fraudlens produce --scenario rapid-fire
  fraudlens produce --scenarios config/scenarios.yaml --live`,
		RunE: runProduce,
	}
	produceCmd.Flags().StringVar(&produceScenario, "scenario", "all", "Scenario to run (normal|rapid-fire|unusual-amount|all)")
	produceCmd.Flags().StringVar(&produceFixture, "scenarios", "", "Path to a YAML scenario fixture (built-in scenarios when empty)")
	produceCmd.Flags().BoolVar(&produceLive, "live", false, "Score with the configured backend instead of the offline heuristic")
	produceCmd.Flags().DurationVar(&produceSettle, "settle", 10*time.Second, "How long to wait for decisions after the last event")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Screen a single event and print the decision",
		Long: `Run one event through the consensus stage with an empty streaming
context and print the decision. Events come from a JSON file, stdin, or
flags. Scoring uses the offline heuristic unless --live is set.

Examples:
  fraudlens analyze --file event.json
  cat event.json | fraudlens analyze --file -
  fraudlens analyze --customer CUST-001 --amount 2500 --category LUXURY_GOODS
  fraudlens analyze --file event.json --live --json`,
		RunE: runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "JSON event file ('-' reads stdin)")
	analyzeCmd.Flags().StringVar(&analyzeTxn, "transaction", "", "Transaction id (generated when empty)")
	analyzeCmd.Flags().StringVar(&analyzeCustomer, "customer", "", "Customer id")
	analyzeCmd.Flags().Float64Var(&analyzeAmount, "amount", 0, "Transaction amount")
	analyzeCmd.Flags().StringVar(&analyzeCurrency, "currency", "USD", "Currency code")
	analyzeCmd.Flags().StringVar(&analyzeMerchant, "merchant", "MERCH-CLI", "Merchant id")
	analyzeCmd.Flags().StringVar(&analyzeCategory, "category", "RETAIL", "Merchant category")
	analyzeCmd.Flags().StringVar(&analyzeLocation, "location", "Unknown Location", "Transaction location")
	analyzeCmd.Flags().BoolVar(&analyzeLive, "live", false, "Score with the configured backend instead of the offline heuristic")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the raw decision as JSON")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running instance's health endpoint",
		Long: `Query the health endpoint of a running serve instance and print the
component checks.

Examples:
  fraudlens health
  fraudlens health --addr http://127.0.0.1:8080 --json`,
		RunE: runHealthProbe,
	}
	healthCmd.Flags().StringVar(&healthAddr, "addr", "http://127.0.0.1:8080", "Base address of the running instance")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print the raw health response")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "Probe timeout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(produceCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: the file named by
// --config when given, built-in defaults otherwise.
func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}
