package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fraudlens/fraudlens/internal/interfaces/http"
)

var (
	healthAddr    string
	healthJSON    bool
	healthTimeout time.Duration
)

const colorReset = "\033[0m"

func runHealthProbe(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: healthTimeout}
	url := strings.TrimRight(healthAddr, "/") + "/api/fraud-detection/health"

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading health response: %w", err)
	}

	if healthJSON {
		fmt.Println(string(body))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("instance answered %d", resp.StatusCode)
		}
		return nil
	}

	var health httpserver.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	fmt.Printf("FraudLens health at %s\n\n", healthAddr)
	fmt.Printf("Status:   %s%s%s\n", statusColor(health.Status), strings.ToUpper(health.Status), colorReset)
	fmt.Printf("Version:  %s\n", health.Version)
	fmt.Printf("Uptime:   %s\n", health.Uptime)
	fmt.Printf("Bus:      %s\n", health.Bus.Status)
	fmt.Printf("Pipeline: running=%t processed=%d skipped=%d queued=%d profiles=%d\n",
		health.Pipeline.Running, health.Pipeline.Processed, health.Pipeline.Skipped,
		health.Pipeline.Queued, health.Pipeline.Profiles)

	if len(health.Topics) > 0 {
		fmt.Printf("\nTopics:\n")
		for _, name := range sortedKeys(health.Topics) {
			fmt.Printf("  %-22s %d messages\n", name, health.Topics[name])
		}
	}

	if len(health.Checks) > 0 {
		fmt.Printf("\nChecks:\n")
		for _, name := range sortedKeys(health.Checks) {
			check := health.Checks[name]
			fmt.Printf("  %-18s %s%-4s%s %s\n",
				name, statusColor(check.Status), check.Status, colorReset, check.Message)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("instance is %s", health.Status)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func statusColor(status string) string {
	switch strings.ToLower(status) {
	case "healthy", "pass", "running":
		return "\033[32m" // Green
	case "degraded", "warn":
		return "\033[33m" // Yellow
	case "unhealthy", "fail", "stopped":
		return "\033[31m" // Red
	}
	return colorReset
}
