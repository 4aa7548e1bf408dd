package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fraudlens/fraudlens/internal/agents"
	"github.com/fraudlens/fraudlens/internal/config"
	"github.com/fraudlens/fraudlens/internal/consensus"
	"github.com/fraudlens/fraudlens/internal/enrich"
	"github.com/fraudlens/fraudlens/internal/feedback"
	httpserver "github.com/fraudlens/fraudlens/internal/interfaces/http"
	"github.com/fraudlens/fraudlens/internal/pipeline"
	"github.com/fraudlens/fraudlens/internal/route"
	"github.com/fraudlens/fraudlens/internal/scorer"
	"github.com/fraudlens/fraudlens/internal/state"
	"github.com/fraudlens/fraudlens/internal/stream"
)

// feedGroup is the consumer group the live websocket feed reads the output
// topics with, separate from the pipeline's own group.
const feedGroup = "fraudlens-feed"

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := httpserver.DefaultMetrics

	busCfg := stream.DefaultBusConfig()
	busCfg.Consumer.CommitInterval = cfg.Bus.CommitInterval
	busCfg.MetricsCallback = metrics.BusCallback()
	bus := stream.NewMemoryBus(busCfg)
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("starting event bus: %w", err)
	}

	var profiles state.ProfileStore = state.NewMemoryProfileStore()
	if cfg.Profiles.RedisAddr != "" {
		profiles = state.NewRedisProfileStore(cfg.Profiles.RedisAddr, cfg.Profiles.RedisDB)
		log.Info().Str("addr", cfg.Profiles.RedisAddr).Msg("Customer profile table backed by Redis")
	}
	velocity := state.NewMemoryVelocityStore(cfg.Velocity.Window)
	enricher := enrich.New(profiles, velocity, cfg.Velocity.HighThreshold)

	scoring, err := buildScorer(cfg)
	if err != nil {
		return err
	}
	registry := agents.NewRegistry(scoring)
	coordinator := consensus.New(registry, scoring, consensus.NewPool(cfg.PoolSize()), consensus.Config{
		FraudThreshold:    cfg.Risk.FraudThreshold,
		VelocityThreshold: cfg.Velocity.HighThreshold,
	})

	store, closeStore, err := buildFeedbackStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	pl, err := pipeline.New(pipeline.Options{
		Bus:         bus,
		Enricher:    enricher,
		Coordinator: coordinator,
		Router:      route.New(bus),
		Sink:        feedback.NewSink(store, registry),
		Partitions:  cfg.Bus.Partitions,
		Window:      cfg.Velocity.Window,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	if err := pl.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	hub := httpserver.NewHub(metrics)
	go hub.Run()
	for _, topic := range []string{stream.TopicFraudAlerts, stream.TopicHumanReview, stream.TopicApproved} {
		if err := bus.Subscribe(ctx, topic, feedGroup, hub.FeedHandler(topic)); err != nil {
			return fmt.Errorf("subscribing live feed to %s: %w", topic, err)
		}
	}

	handlers := httpserver.NewHandlers(coordinator, registry, bus, pipelineSnapshot(pl))
	server, err := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, handlers, hub, metrics)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info().
		Str("addr", server.GetAddress()).
		Str("scorer_profile", cfg.Scorer.Profile).
		Int("partitions", cfg.Bus.Partitions).
		Int("pool_size", cfg.PoolSize()).
		Msg("FraudLens is screening")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("control-plane server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Control-plane shutdown failed")
	}
	if err := pl.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Pipeline shutdown failed")
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Event bus shutdown failed")
	}
	return nil
}

// pipelineSnapshot adapts the pipeline's stats to the health surface.
func pipelineSnapshot(pl *pipeline.Pipeline) httpserver.SnapshotFunc {
	return func(ctx context.Context) httpserver.PipelineSnapshot {
		stats := pl.Snapshot(ctx)
		return httpserver.PipelineSnapshot{
			Running:    stats.Running,
			Partitions: stats.Partitions,
			Processed:  stats.Processed,
			Skipped:    stats.Skipped,
			Queued:     stats.Queued,
			Profiles:   stats.Profiles,
		}
	}
}

// buildScorer assembles the scoring stack for the configured profile: the
// chat backend wrapped in the circuit breaker, rate limiter, and per-call
// timeout, with the optional score cache outermost.
func buildScorer(cfg *config.Config) (scorer.Scorer, error) {
	chat, err := scorer.NewChatScorer(scorer.ChatConfig{
		BaseURL:     cfg.Scorer.BaseURL,
		Model:       cfg.Scorer.Model,
		APIKey:      cfg.ScorerCredentials(),
		MaxTokens:   cfg.Scorer.MaxTokens,
		Temperature: cfg.Scorer.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s scorer: %w", cfg.Scorer.Profile, err)
	}

	var s scorer.Scorer = scorer.NewResilientScorer(chat, scorer.ResilientConfig{
		Name:             "scorer-" + cfg.Scorer.Profile,
		FailureThreshold: cfg.Scorer.Circuit.FailureThreshold,
		OpenInterval:     cfg.Scorer.Circuit.OpenInterval,
		HalfOpenMax:      cfg.Scorer.Circuit.HalfOpenMax,
		RPS:              cfg.Scorer.RPS,
		Burst:            cfg.Scorer.Burst,
		CallTimeout:      cfg.Scorer.Timeout,
	})

	if cfg.Scorer.Cache.Enabled {
		cache := scorer.NewMemoryCache()
		if cfg.Scorer.Cache.RedisAddr != "" {
			cache = scorer.NewRedisCache(cfg.Scorer.Cache.RedisAddr)
			log.Info().Str("addr", cfg.Scorer.Cache.RedisAddr).Msg("Score cache backed by Redis")
		}
		s = scorer.NewCachedScorer(s, cache, cfg.Scorer.Cache.TTL)
	}
	return s, nil
}

// buildFeedbackStore picks Postgres when a DSN is configured, memory
// otherwise. The returned closer is a no-op for the memory store.
func buildFeedbackStore(ctx context.Context, cfg *config.Config) (feedback.Store, func(), error) {
	if cfg.Feedback.PostgresDSN == "" {
		return feedback.NewMemoryStore(), func() {}, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Feedback.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting feedback store: %w", err)
	}
	store := feedback.NewPostgresStore(db, cfg.Feedback.Timeout)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("preparing feedback schema: %w", err)
	}
	log.Info().Msg("Analyst feedback backed by Postgres")
	return store, func() { db.Close() }, nil
}
