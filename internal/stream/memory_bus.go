package stream

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryBus implements EventBus as an in-process broker with Kafka
// semantics: per-topic append-only logs with monotonic offsets, consumer
// groups with earliest/latest reset, key compaction, handler retries, and a
// dead-letter topic. The pipeline runs on it directly; swapping in a real
// broker means implementing EventBus against its client.
type MemoryBus struct {
	config  BusConfig
	started bool
	stopCh  chan struct{}
	mu      sync.RWMutex

	topics       map[string]*topicState
	consumers    int
	deadLettered int
}

type topicState struct {
	config     TopicConfig
	log        []*Message
	nextOffset int64
	createdAt  time.Time
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus(config BusConfig) *MemoryBus {
	if config.Consumer.PollInterval <= 0 {
		config.Consumer.PollInterval = 10 * time.Millisecond
	}
	return &MemoryBus{
		config: config,
		topics: make(map[string]*topicState),
	}
}

// Start marks the bus ready. Idempotent.
func (b *MemoryBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}
	b.started = true
	b.stopCh = make(chan struct{})

	b.emit("stream_bus_started", 1, map[string]string{"client_id": b.config.ClientID})
	return nil
}

// Stop halts delivery. Consumer goroutines drain on the stop channel;
// retained logs survive until the process exits, so a restarted subscriber
// with earliest reset replays them.
func (b *MemoryBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}
	b.started = false
	close(b.stopCh)

	b.emit("stream_bus_stopped", 1, nil)
	return nil
}

// Publish appends one message to the topic log. Unknown topics are created
// on first use with a single partition. Compacted topics drop the previous
// record for the same key.
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrBusNotStarted
	}
	_, err := b.appendLocked(topic, key, payload, nil)
	if err != nil {
		return err
	}

	b.emit("stream_publish_total", 1, map[string]string{"topic": topic})
	return nil
}

// PublishBatch appends multiple messages under one lock acquisition.
func (b *MemoryBus) PublishBatch(ctx context.Context, messages []Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrBusNotStarted
	}
	for i := range messages {
		m := &messages[i]
		if _, err := b.appendLocked(m.Topic, m.Key, m.Payload, m.Headers); err != nil {
			return fmt.Errorf("batch publish to %s: %w", m.Topic, err)
		}
	}
	b.emit("stream_publish_batch_total", len(messages), nil)
	return nil
}

// appendLocked writes one message. Caller holds the write lock.
func (b *MemoryBus) appendLocked(topic, key string, payload []byte, headers map[string]string) (*Message, error) {
	state, ok := b.topics[topic]
	if !ok {
		state = &topicState{
			config:    TopicConfig{Name: topic, Partitions: 1},
			createdAt: time.Now(),
		}
		b.topics[topic] = state
	}

	if max := state.config.MaxMessageSize; max > 0 && int64(len(payload)) > max {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds topic limit %d", ErrInvalidMessage, len(payload), max)
	}

	if state.config.CompactionEnabled && key != "" {
		for i := len(state.log) - 1; i >= 0; i-- {
			if state.log[i].Key == key {
				state.log = append(state.log[:i], state.log[i+1:]...)
				break
			}
		}
	}

	message := &Message{
		ID:        fmt.Sprintf("%s-%d", topic, state.nextOffset),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		Headers:   headers,
		Timestamp: time.Now(),
		Partition: partitionFor(key, state.config.Partitions),
		Offset:    state.nextOffset,
	}
	state.nextOffset++
	state.log = append(state.log, message)
	return message, nil
}

// partitionFor hashes the key onto a partition; empty keys land on 0.
func partitionFor(key string, partitions int32) int32 {
	if partitions <= 1 || key == "" {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int32(h.Sum32() % uint32(partitions))
}

// Subscribe registers a handler and starts its delivery goroutine. The
// consumer starts from the earliest retained offset or the log tail per the
// bus consumer config.
func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrBusNotStarted
	}

	var startOffset int64
	if b.config.Consumer.AutoOffsetReset == "latest" {
		if state, ok := b.topics[topic]; ok {
			startOffset = state.nextOffset
		}
	}
	stopCh := b.stopCh
	b.consumers++
	b.mu.Unlock()

	go b.consumeLoop(ctx, stopCh, topic, group, startOffset, handler)

	b.emit("stream_subscribe_total", 1, map[string]string{"topic": topic, "group": group})
	return nil
}

// SubscribeWithFilter subscribes with message filtering.
func (b *MemoryBus) SubscribeWithFilter(ctx context.Context, topic, group string, filter MessageFilter, handler MessageHandler) error {
	filtered := func(ctx context.Context, message *Message) error {
		if filter(message) {
			return handler(ctx, message)
		}
		return nil
	}
	return b.Subscribe(ctx, topic, group, filtered)
}

// consumeLoop polls the topic log and delivers new messages in offset order.
// Handlers run outside the bus lock so they may publish.
func (b *MemoryBus) consumeLoop(ctx context.Context, stopCh chan struct{}, topic, group string, offset int64, handler MessageHandler) {
	defer func() {
		b.mu.Lock()
		b.consumers--
		b.mu.Unlock()
	}()

	ticker := time.NewTicker(b.config.Consumer.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			for _, message := range b.pending(topic, offset) {
				if err := b.callHandlerWithRetry(ctx, handler, message); err != nil {
					b.deadLetter(message, err)
					b.emit("stream_handler_error_total", 1, map[string]string{"topic": topic, "group": group})
				} else {
					b.emit("stream_consume_total", 1, map[string]string{"topic": topic, "group": group})
				}
				offset = message.Offset + 1
			}
		}
	}
}

// pending snapshots log entries at or beyond the offset.
func (b *MemoryBus) pending(topic string, offset int64) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, ok := b.topics[topic]
	if !ok || len(state.log) == 0 {
		return nil
	}
	idx := sort.Search(len(state.log), func(i int) bool {
		return state.log[i].Offset >= offset
	})
	if idx == len(state.log) {
		return nil
	}
	batch := make([]*Message, len(state.log)-idx)
	copy(batch, state.log[idx:])
	return batch
}

// callHandlerWithRetry retries failed handlers with capped backoff.
func (b *MemoryBus) callHandlerWithRetry(ctx context.Context, handler MessageHandler, message *Message) error {
	var lastErr error

	for attempt := 0; attempt <= b.config.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(b.config.Retry.InitialDelay) *
				float64(b.config.Retry.BackoffFactor) * float64(attempt))
			if delay > b.config.Retry.MaxDelay {
				delay = b.config.Retry.MaxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			b.emit("stream_retries_total", 1, map[string]string{"topic": message.Topic})
		}

		err := handler(ctx, message)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// deadLetter forwards an undeliverable message to the dead-letter topic with
// failure headers attached.
func (b *MemoryBus) deadLetter(message *Message, cause error) {
	if !b.config.DeadLetter.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}

	headers := map[string]string{
		"original_topic": message.Topic,
		"error":          cause.Error(),
		"retry_count":    fmt.Sprintf("%d", b.config.Retry.MaxRetries),
	}
	if _, err := b.appendLocked(b.config.DeadLetter.Topic, message.Key, message.Payload, headers); err != nil {
		log.Error().Err(err).Str("topic", message.Topic).Msg("Dead-letter append failed")
		return
	}
	b.deadLettered++
	b.emit("stream_dlq_total", 1, map[string]string{"original_topic": message.Topic})
}

// CreateTopic registers a topic with explicit configuration.
func (b *MemoryBus) CreateTopic(ctx context.Context, config TopicConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrBusNotStarted
	}
	if _, exists := b.topics[config.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTopicExists, config.Name)
	}
	if config.Partitions <= 0 {
		config.Partitions = 1
	}
	b.topics[config.Name] = &topicState{config: config, createdAt: time.Now()}

	b.emit("stream_topic_created", 1, map[string]string{"topic": config.Name})
	return nil
}

// DeleteTopic removes a topic and its retained log.
func (b *MemoryBus) DeleteTopic(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrBusNotStarted
	}
	if _, exists := b.topics[topic]; !exists {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	delete(b.topics, topic)
	return nil
}

// GetTopicInfo returns a snapshot of topic metadata and stats.
func (b *MemoryBus) GetTopicInfo(ctx context.Context, topic string) (*TopicInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return nil, ErrBusNotStarted
	}
	state, exists := b.topics[topic]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}

	byteSize := int64(0)
	for _, msg := range state.log {
		byteSize += int64(len(msg.Payload))
	}

	cleanup := "delete"
	if state.config.CompactionEnabled {
		cleanup = "compact"
	}
	return &TopicInfo{
		Name:       topic,
		Partitions: state.config.Partitions,
		Config: map[string]string{
			"cleanup.policy": cleanup,
			"retention.ms":   fmt.Sprintf("%d", state.config.RetentionTime.Milliseconds()),
		},
		CreatedAt: state.createdAt,
		Stats: TopicStats{
			MessageCount: int64(len(state.log)),
			ByteSize:     byteSize,
			NextOffset:   state.nextOffset,
		},
	}, nil
}

// Health reports bus liveness and counters.
func (b *MemoryBus) Health() HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := HealthStatus{
		Healthy: b.started,
		Status:  "running",
		Metrics: HealthMetrics{
			ActiveTopics:    len(b.topics),
			ActiveConsumers: b.consumers,
			DeadLettered:    b.deadLettered,
		},
		LastCheck: time.Now(),
	}
	if !b.started {
		status.Status = "stopped"
		status.Errors = append(status.Errors, "bus not started")
	}
	return status
}

func (b *MemoryBus) emit(metric string, value int, tags map[string]string) {
	if b.config.MetricsCallback != nil {
		b.config.MetricsCallback(metric, value, tags)
	}
}
