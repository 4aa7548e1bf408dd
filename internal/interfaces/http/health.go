package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/fraudlens/fraudlens/internal/stream"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Version   string    `json:"version"`

	System   SystemInfo          `json:"system"`
	Bus      stream.HealthStatus `json:"bus"`
	Pipeline PipelineSnapshot    `json:"pipeline"`
	Topics   map[string]int64    `json:"topics"`

	Checks map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information.
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	MemSys        uint64 `json:"mem_sys_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results.
type CheckResult struct {
	Status    string        `json:"status"` // "pass", "warn", "fail"
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Health implements the health check endpoint. Degraded still answers 200;
// only unhealthy turns into 503 so restart loops need a real failure.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := h.gatherHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	switch response.Status {
	case "healthy", "degraded":
		w.WriteHeader(http.StatusOK)
	case "unhealthy":
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	response.Checks["health_endpoint"] = CheckResult{
		Status:    "pass",
		Message:   "Health endpoint responding",
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// gatherHealth collects all health information.
func (h *Handlers) gatherHealth(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).String(),
		Version:   Version,
		System:    h.getSystemInfo(),
		Topics:    make(map[string]int64),
		Checks:    make(map[string]CheckResult),
	}

	h.addBusChecks(ctx, &response)
	h.addPipelineChecks(ctx, &response)
	h.addSystemChecks(&response)

	response.Status = h.calculateOverallStatus(response.Checks)
	return response
}

// getSystemInfo collects system runtime information.
func (h *Handlers) getSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		MemSys:        memStats.Sys,
		NumGC:         memStats.NumGC,
	}
}

// addBusChecks probes the event bus and collects per-topic message counts.
func (h *Handlers) addBusChecks(ctx context.Context, response *HealthResponse) {
	if h.bus == nil {
		response.Checks["bus"] = CheckResult{
			Status:    "warn",
			Message:   "No event bus attached",
			Timestamp: time.Now(),
		}
		return
	}

	response.Bus = h.bus.Health()
	if response.Bus.Healthy {
		response.Checks["bus"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Event bus %s", response.Bus.Status),
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["bus"] = CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("Event bus unhealthy: %s", response.Bus.Status),
			Timestamp: time.Now(),
		}
	}

	for _, topic := range stream.AllTopics() {
		info, err := h.bus.GetTopicInfo(ctx, topic)
		if err != nil {
			continue
		}
		response.Topics[topic] = info.Stats.MessageCount
	}
}

// addPipelineChecks reports pipeline liveness and backlog.
func (h *Handlers) addPipelineChecks(ctx context.Context, response *HealthResponse) {
	if h.snapshot == nil {
		response.Checks["pipeline"] = CheckResult{
			Status:    "warn",
			Message:   "No pipeline attached",
			Timestamp: time.Now(),
		}
		return
	}

	response.Pipeline = h.snapshot(ctx)
	if response.Pipeline.Running {
		response.Checks["pipeline"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Pipeline running with %d partitions", response.Pipeline.Partitions),
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["pipeline"] = CheckResult{
			Status:    "fail",
			Message:   "Pipeline is not running",
			Timestamp: time.Now(),
		}
	}

	if response.Pipeline.Queued > 512 {
		response.Checks["pipeline_backlog"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("Queue backlog building: %d events waiting", response.Pipeline.Queued),
			Timestamp: time.Now(),
		}
	}
}

// addSystemChecks adds system-level health checks.
func (h *Handlers) addSystemChecks(response *HealthResponse) {
	memUsagePercent := float64(response.System.MemAlloc) / float64(response.System.MemSys) * 100

	if memUsagePercent > 90 {
		response.Checks["memory"] = CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("Memory usage critical: %.1f%%", memUsagePercent),
			Timestamp: time.Now(),
		}
	} else if memUsagePercent > 75 {
		response.Checks["memory"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("Memory usage high: %.1f%%", memUsagePercent),
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["memory"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Memory usage normal: %.1f%%", memUsagePercent),
			Timestamp: time.Now(),
		}
	}

	if response.System.NumGoroutines > 1000 {
		response.Checks["goroutines"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("High goroutine count: %d", response.System.NumGoroutines),
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["goroutines"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Goroutine count normal: %d", response.System.NumGoroutines),
			Timestamp: time.Now(),
		}
	}
}

// calculateOverallStatus determines overall service health: any failing
// check is unhealthy, any warning degrades, otherwise healthy.
func (h *Handlers) calculateOverallStatus(checks map[string]CheckResult) string {
	status := "healthy"
	for _, check := range checks {
		switch check.Status {
		case "fail":
			return "unhealthy"
		case "warn":
			status = "degraded"
		}
	}
	return status
}
