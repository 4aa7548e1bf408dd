// Package pipeline wires the screening topology together: bus
// subscriptions, partition workers, enrichment, the decision stage,
// routing, and the feedback sink. One logical worker per partition keeps
// per-customer ordering end to end; the decision fan-out inside a pass
// runs on the coordinator's shared pool.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/consensus"
	"github.com/fraudlens/fraudlens/internal/domain"
	"github.com/fraudlens/fraudlens/internal/enrich"
	"github.com/fraudlens/fraudlens/internal/feedback"
	httpmetrics "github.com/fraudlens/fraudlens/internal/interfaces/http"
	"github.com/fraudlens/fraudlens/internal/route"
	"github.com/fraudlens/fraudlens/internal/stream"
)

const queueDepth = 256

// Options configures a Pipeline. Bus, Enricher, Coordinator, and Router are
// required; Sink and Metrics are optional.
type Options struct {
	Bus         stream.EventBus
	Enricher    *enrich.Enricher
	Coordinator *consensus.Coordinator
	Router      *route.Router
	Sink        *feedback.Sink

	Partitions int           // worker count; <= 0 defaults to 4
	Window     time.Duration // velocity window, drives state pruning
	Group      string        // consumer group name
	Metrics    *httpmetrics.MetricsRegistry
}

// Pipeline runs the full screening topology over the event bus.
type Pipeline struct {
	bus         stream.EventBus
	enricher    *enrich.Enricher
	coordinator *consensus.Coordinator
	router      *route.Router
	sink        *feedback.Sink
	metrics     *httpmetrics.MetricsRegistry

	partitions int
	window     time.Duration
	group      string
	queues     []chan domain.Event

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	wg     sync.WaitGroup

	started   atomic.Bool
	processed atomic.Int64
	skipped   atomic.Int64
}

// New validates the wiring and builds a stopped Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("pipeline requires a bus")
	}
	if opts.Enricher == nil {
		return nil, fmt.Errorf("pipeline requires an enricher")
	}
	if opts.Coordinator == nil {
		return nil, fmt.Errorf("pipeline requires a coordinator")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("pipeline requires a router")
	}
	if opts.Partitions <= 0 {
		opts.Partitions = 4
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if opts.Group == "" {
		opts.Group = "fraudlens-pipeline"
	}

	queues := make([]chan domain.Event, opts.Partitions)
	for i := range queues {
		queues[i] = make(chan domain.Event, queueDepth)
	}

	return &Pipeline{
		bus:         opts.Bus,
		enricher:    opts.Enricher,
		coordinator: opts.Coordinator,
		router:      opts.Router,
		sink:        opts.Sink,
		metrics:     opts.Metrics,
		partitions:  opts.Partitions,
		window:      opts.Window,
		group:       opts.Group,
		queues:      queues,
		quit:        make(chan struct{}),
	}, nil
}

// Start creates the topics, subscribes the handlers, and launches the
// partition workers and the state pruner.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already started")
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := stream.EnsureTopics(p.ctx, p.bus, int32(p.partitions)); err != nil {
		return fmt.Errorf("creating pipeline topics: %w", err)
	}

	if err := p.bus.Subscribe(p.ctx, stream.TopicTransactions, p.group, p.handleTransaction); err != nil {
		return fmt.Errorf("subscribing to %s: %w", stream.TopicTransactions, err)
	}
	if err := p.bus.Subscribe(p.ctx, stream.TopicProfiles, p.group, p.handleProfile); err != nil {
		return fmt.Errorf("subscribing to %s: %w", stream.TopicProfiles, err)
	}
	if p.sink != nil {
		if err := p.bus.Subscribe(p.ctx, stream.TopicFeedback, p.group, p.handleFeedback); err != nil {
			return fmt.Errorf("subscribing to %s: %w", stream.TopicFeedback, err)
		}
	}

	for i := 0; i < p.partitions; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.wg.Add(1)
	go p.pruneLoop()

	log.Info().
		Int("partitions", p.partitions).
		Dur("velocity_window", p.window).
		Str("group", p.group).
		Msg("Screening pipeline started")
	return nil
}

// Stop cancels in-flight work and waits for the workers to exit, bounded by
// ctx. Events mid-decision are abandoned and re-delivered on restart.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.started.CompareAndSwap(true, false) {
		return nil
	}
	p.cancel()
	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().
			Int64("processed", p.processed.Load()).
			Int64("skipped", p.skipped.Load()).
			Msg("Screening pipeline stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown timed out: %w", ctx.Err())
	}
}

// partitionFor mirrors the bus keying so a customer's events always land on
// the same worker, preserving per-customer order.
func (p *Pipeline) partitionFor(customerID string) int {
	h := fnv.New32a()
	h.Write([]byte(customerID))
	return int(h.Sum32() % uint32(p.partitions))
}

// handleTransaction decodes and validates one event, then hands it to its
// partition worker. Malformed records are logged and skipped so they cannot
// wedge the topic.
func (p *Pipeline) handleTransaction(ctx context.Context, message *stream.Message) error {
	p.recordConsumed(stream.TopicTransactions)

	var event domain.Event
	if err := json.Unmarshal(message.Payload, &event); err != nil {
		p.skip(stream.TopicTransactions, "decode", message.Offset, err)
		return nil
	}
	if err := event.Validate(); err != nil {
		p.skip(stream.TopicTransactions, "invalid", message.Offset, err)
		return nil
	}

	select {
	case p.queues[p.partitionFor(event.CustomerID)] <- event:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// handleProfile applies one profile snapshot to the materialized table.
func (p *Pipeline) handleProfile(ctx context.Context, message *stream.Message) error {
	p.recordConsumed(stream.TopicProfiles)

	var profile domain.Profile
	if err := json.Unmarshal(message.Payload, &profile); err != nil {
		p.skip(stream.TopicProfiles, "decode", message.Offset, err)
		return nil
	}
	if err := p.enricher.ApplyProfile(ctx, profile); err != nil {
		p.skip(stream.TopicProfiles, "invalid", message.Offset, err)
		return nil
	}
	return nil
}

// handleFeedback records one analyst verdict. Store failures surface so the
// bus retry policy applies; malformed records are skipped.
func (p *Pipeline) handleFeedback(ctx context.Context, message *stream.Message) error {
	p.recordConsumed(stream.TopicFeedback)

	var f domain.Feedback
	if err := json.Unmarshal(message.Payload, &f); err != nil {
		p.skip(stream.TopicFeedback, "decode", message.Offset, err)
		return nil
	}
	if err := f.Validate(); err != nil {
		p.skip(stream.TopicFeedback, "invalid", message.Offset, err)
		return nil
	}
	if err := p.sink.Process(ctx, f); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordFeedback()
	}
	return nil
}

// worker drains one partition queue in order.
func (p *Pipeline) worker(idx int) {
	defer p.wg.Done()
	log.Debug().Int("partition", idx).Msg("Partition worker started")

	for {
		select {
		case <-p.quit:
			return
		case event := <-p.queues[idx]:
			p.process(event)
		}
	}
}

// process runs one event through enrichment, the decision pass, and the
// router.
func (p *Pipeline) process(event domain.Event) {
	enriched, err := p.enricher.Enrich(p.ctx, event)
	if err != nil {
		p.skip(stream.TopicTransactions, "enrich", 0, err)
		return
	}

	start := time.Now()
	decision := p.coordinator.Decide(p.ctx, enriched)
	elapsed := time.Since(start)

	verdict := "legitimate"
	if decision.Fraud {
		verdict = "fraud"
	}
	if p.metrics != nil {
		p.metrics.RecordDecision(verdict, decision.Confidence, elapsed.Seconds())
	}

	dest, err := p.router.Route(p.ctx, event.CustomerID, decision)
	if err != nil {
		// Rare outside shutdown; the event will be re-delivered once the
		// bus is back.
		log.Error().
			Err(err).
			Str("transaction", event.TransactionID).
			Str("destination", dest.String()).
			Msg("Failed to publish decision")
		return
	}
	if p.metrics != nil {
		p.metrics.RecordRouted(dest.String())
	}
	p.processed.Add(1)
}

// pruneLoop discards velocity windows old enough that no live event can
// land in them. The cutoff trails by two windows so the current and the
// immediately previous window always survive.
func (p *Pipeline) pruneLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.window)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case now := <-ticker.C:
			p.enricher.Prune(now.Add(-2 * p.window))
			log.Debug().Msg("Velocity window state pruned")
		}
	}
}

func (p *Pipeline) recordConsumed(topic string) {
	if p.metrics != nil {
		p.metrics.RecordConsumed(topic)
	}
}

func (p *Pipeline) skip(topic, reason string, offset int64, err error) {
	p.skipped.Add(1)
	if p.metrics != nil {
		p.metrics.RecordSkipped(topic, reason)
	}
	log.Warn().
		Err(err).
		Str("topic", topic).
		Str("reason", reason).
		Int64("offset", offset).
		Msg("Skipping record")
}

// Stats is a point-in-time snapshot for health reporting.
type Stats struct {
	Running    bool  `json:"running"`
	Partitions int   `json:"partitions"`
	Processed  int64 `json:"processed"`
	Skipped    int64 `json:"skipped"`
	Queued     int   `json:"queued"`
	Profiles   int64 `json:"profiles"`
}

// Snapshot reports current pipeline health.
func (p *Pipeline) Snapshot(ctx context.Context) Stats {
	queued := 0
	for _, q := range p.queues {
		queued += len(q)
	}
	profiles, err := p.enricher.ProfileCount(ctx)
	if err != nil {
		profiles = -1
	}
	return Stats{
		Running:    p.started.Load(),
		Partitions: p.partitions,
		Processed:  p.processed.Load(),
		Skipped:    p.skipped.Load(),
		Queued:     queued,
		Profiles:   profiles,
	}
}
