package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/consensus"
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/route"
	"github.com/fraudlens/fraudlens/internal/stream"
)

// Version reported by the info and health surfaces.
const Version = "1.0.0"

// BusProbe is the health view of the event bus.
type BusProbe interface {
	Health() stream.HealthStatus
	GetTopicInfo(ctx context.Context, topic string) (*stream.TopicInfo, error)
}

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	coordinator *consensus.Coordinator
	registry    *agents.Registry
	bus         BusProbe
	snapshot    SnapshotFunc
	startTime   time.Time
}

// NewHandlers wires the endpoint handlers. The bus probe and snapshot
// function may be nil; the health surface then reports what it can see.
func NewHandlers(coordinator *consensus.Coordinator, registry *agents.Registry, bus BusProbe, snapshot SnapshotFunc) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		registry:    registry,
		bus:         bus,
		snapshot:    snapshot,
		startTime:   time.Now(),
	}
}

// writeJSON writes a JSON response with proper error handling.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Fallback error response
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes a standardized error response.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// Analyze runs one decision pass outside the stream. The event gets no
// velocity and no profile joined, exactly as if both lookups had missed, so
// the verdict rests on the analyzers alone. A technical-error decision
// returns 500 but still carries the reviewable body.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var event domain.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_json",
			fmt.Sprintf("request body is not a valid transaction event: %v", err))
		return
	}
	if err := event.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	log.Info().
		Str("request_id", RequestIDFromContext(r.Context())).
		Str("transaction", event.TransactionID).
		Msg("On-demand fraud analysis requested")

	decision := h.coordinator.Decide(r.Context(), domain.Enrich(event, nil, nil))

	status := http.StatusOK
	if consensus.IsErrorDecision(decision) {
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, AnalyzeResponse{
		Decision:    decision,
		Destination: route.Classify(decision).String(),
	})
}

// AgentsInfo describes the analyzer panel.
func (h *Handlers) AgentsInfo(w http.ResponseWriter, r *http.Request) {
	infos := h.registry.Describe()
	h.writeJSON(w, http.StatusOK, AgentsInfoResponse{
		TotalAgents:  len(infos),
		Architecture: "Streaming-intelligent multi-agent consensus",
		Version:      Version,
		Agents:       infos,
		Capabilities: []string{
			"Real-time velocity intelligence",
			"Customer profile streaming context",
			"AI-enhanced pattern detection",
			"Streaming-intelligent decision synthesis",
			"Dynamic risk adjustment with streaming data",
		},
	})
}

// NotFound handles 404 responses.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
