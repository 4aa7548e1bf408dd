package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// MetricsRegistry holds all Prometheus metrics for the screening pipeline.
type MetricsRegistry struct {
	// Input side
	EventsConsumed *prometheus.CounterVec
	EventsSkipped  *prometheus.CounterVec

	// Decision stage
	DecisionDuration   *prometheus.HistogramVec
	DecisionConfidence *prometheus.HistogramVec
	DecisionsRouted    *prometheus.CounterVec
	FraudRate          prometheus.Gauge

	// Feedback loop
	FeedbackProcessed prometheus.Counter

	// Bus internals, fed by the bus metrics callback
	BusEvents *prometheus.CounterVec

	// HTTP surface
	RequestDuration *prometheus.HistogramVec
	WSClients       prometheus.Gauge
}

// NewMetricsRegistry creates and registers the fraudlens metric set.
func NewMetricsRegistry() *MetricsRegistry {
	registry := &MetricsRegistry{
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraudlens_events_consumed_total",
				Help: "Records consumed from the input topics",
			},
			[]string{"topic"},
		),

		EventsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraudlens_events_skipped_total",
				Help: "Records dropped at the bus adapter by reason",
			},
			[]string{"topic", "reason"},
		),

		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraudlens_decision_duration_seconds",
				Help:    "Wall-clock time of one full decision pass",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"verdict"},
		),

		DecisionConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraudlens_decision_confidence",
				Help:    "Confidence score distribution per verdict",
				Buckets: []float64{0.3, 0.4, 0.5, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"verdict"},
		),

		DecisionsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraudlens_decisions_routed_total",
				Help: "Decisions delivered to each output topic",
			},
			[]string{"destination"},
		),

		FraudRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fraudlens_fraud_alert_ratio",
				Help: "Share of routed decisions that raised a fraud alert (0.0 to 1.0)",
			},
		),

		FeedbackProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fraudlens_feedback_processed_total",
				Help: "Analyst verdicts recorded by the feedback sink",
			},
		),

		BusEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraudlens_bus_events_total",
				Help: "Internal bus counters surfaced by the bus metrics callback",
			},
			[]string{"metric", "topic"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fraudlens_http_request_duration_seconds",
				Help:    "Control-plane request latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"path", "status"},
		),

		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fraudlens_ws_clients",
				Help: "Connected live-feed websocket clients",
			},
		),
	}

	prometheus.MustRegister(
		registry.EventsConsumed,
		registry.EventsSkipped,
		registry.DecisionDuration,
		registry.DecisionConfidence,
		registry.DecisionsRouted,
		registry.FraudRate,
		registry.FeedbackProcessed,
		registry.BusEvents,
		registry.RequestDuration,
		registry.WSClients,
	)

	return registry
}

// DefaultMetrics is the process-wide registry. Nil until InitializeMetrics.
var DefaultMetrics *MetricsRegistry

// InitializeMetrics initializes the global metrics registry. Safe to call
// more than once.
func InitializeMetrics() {
	if DefaultMetrics != nil {
		return
	}
	DefaultMetrics = NewMetricsRegistry()
	log.Info().Msg("Prometheus metrics registry initialized")
}

// RecordConsumed counts one record consumed from topic.
func (m *MetricsRegistry) RecordConsumed(topic string) {
	m.EventsConsumed.WithLabelValues(topic).Inc()
}

// RecordSkipped counts one record dropped at the adapter.
func (m *MetricsRegistry) RecordSkipped(topic, reason string) {
	m.EventsSkipped.WithLabelValues(topic, reason).Inc()
}

// RecordDecision observes one completed decision pass.
func (m *MetricsRegistry) RecordDecision(verdict string, confidence, seconds float64) {
	m.DecisionDuration.WithLabelValues(verdict).Observe(seconds)
	m.DecisionConfidence.WithLabelValues(verdict).Observe(confidence)
}

// RecordRouted counts one routed decision and refreshes the alert ratio.
func (m *MetricsRegistry) RecordRouted(destination string) {
	m.DecisionsRouted.WithLabelValues(destination).Inc()
	m.updateFraudRate()
}

// RecordFeedback counts one analyst verdict.
func (m *MetricsRegistry) RecordFeedback() {
	m.FeedbackProcessed.Inc()
}

// RecordRequest observes one control-plane request.
func (m *MetricsRegistry) RecordRequest(path, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(path, status).Observe(seconds)
}

// WSClientConnected tracks a new live-feed subscriber.
func (m *MetricsRegistry) WSClientConnected() {
	m.WSClients.Inc()
}

// WSClientDisconnected tracks a departed live-feed subscriber.
func (m *MetricsRegistry) WSClientDisconnected() {
	m.WSClients.Dec()
}

// BusCallback adapts the registry to the bus metrics hook.
func (m *MetricsRegistry) BusCallback() func(metric string, value int, tags map[string]string) {
	return func(metric string, value int, tags map[string]string) {
		m.BusEvents.WithLabelValues(metric, tags["topic"]).Add(float64(value))
	}
}

// updateFraudRate recomputes the alert ratio from the routed counters.
func (m *MetricsRegistry) updateFraudRate() {
	var sample io_prometheus_client.Metric

	total := 0.0
	alerts := 0.0
	for _, destination := range []string{"fraud-alert", "human-review", "approved"} {
		counter, err := m.DecisionsRouted.GetMetricWithLabelValues(destination)
		if err != nil {
			continue
		}
		if err := counter.Write(&sample); err != nil {
			continue
		}
		value := sample.GetCounter().GetValue()
		total += value
		if destination == "fraud-alert" {
			alerts += value
		}
	}

	if total > 0 {
		m.FraudRate.Set(alerts / total)
	}
}

// MetricsHandler returns the Prometheus scrape handler.
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
