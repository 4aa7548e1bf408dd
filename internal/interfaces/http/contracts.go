package http

import (
	"context"
	"time"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/domain"
)

// AnalyzeResponse carries one on-demand decision pass: the full decision
// plus the branch the stream router would pick for it.
type AnalyzeResponse struct {
	domain.Decision
	Destination string `json:"destination"`
}

// AgentsInfoResponse describes the closed analyzer panel.
type AgentsInfoResponse struct {
	TotalAgents  int                `json:"totalAgents"`
	Architecture string             `json:"architecture"`
	Version      string             `json:"version"`
	Agents       []agents.AgentInfo `json:"agents"`
	Capabilities []string           `json:"streamingCapabilities"`
}

// PipelineSnapshot reports the screening pipeline's counters on the health
// surface.
type PipelineSnapshot struct {
	Running    bool  `json:"running"`
	Partitions int   `json:"partitions"`
	Processed  int64 `json:"processed"`
	Skipped    int64 `json:"skipped"`
	Queued     int   `json:"queued"`
	Profiles   int64 `json:"profiles"`
}

// SnapshotFunc supplies the current pipeline counters. The server only sees
// the pipeline through this function.
type SnapshotFunc func(ctx context.Context) PipelineSnapshot

// ErrorResponse represents API error responses.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
