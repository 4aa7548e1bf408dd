// Package stream provides the message-bus boundary of the screening
// pipeline: a Kafka-shaped EventBus interface, the in-process implementation
// the pipeline runs on today, and the fraudlens topic registry.
package stream

import (
	"context"
	"fmt"
	"time"
)

// EventBus is the pub/sub surface the pipeline is written against.
type EventBus interface {
	// Core pub/sub operations
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error

	// Lifecycle management
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() HealthStatus

	// Advanced features
	PublishBatch(ctx context.Context, messages []Message) error
	SubscribeWithFilter(ctx context.Context, topic, group string, filter MessageFilter, handler MessageHandler) error

	// Administrative operations
	CreateTopic(ctx context.Context, config TopicConfig) error
	DeleteTopic(ctx context.Context, topic string) error
	GetTopicInfo(ctx context.Context, topic string) (*TopicInfo, error)
}

// Message is a single record on the bus.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Key       string            `json:"key"`
	Payload   []byte            `json:"payload"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Partition int32             `json:"partition,omitempty"`
	Offset    int64             `json:"offset,omitempty"`
}

// MessageHandler processes incoming messages. A non-nil error triggers the
// bus retry policy and eventually the dead-letter topic.
type MessageHandler func(ctx context.Context, message *Message) error

// MessageFilter allows selective message processing.
type MessageFilter func(message *Message) bool

// TopicConfig holds topic configuration.
type TopicConfig struct {
	Name              string        `json:"name"`
	Partitions        int32         `json:"partitions"`
	ReplicationFactor int16         `json:"replication_factor"`
	RetentionTime     time.Duration `json:"retention_time"`
	CompactionEnabled bool          `json:"compaction_enabled"`
	MaxMessageSize    int64         `json:"max_message_size"`
}

// TopicInfo provides topic metadata.
type TopicInfo struct {
	Name       string            `json:"name"`
	Partitions int32             `json:"partitions"`
	Config     map[string]string `json:"config"`
	CreatedAt  time.Time         `json:"created_at"`
	Stats      TopicStats        `json:"stats"`
}

// TopicStats provides topic statistics.
type TopicStats struct {
	MessageCount int64 `json:"message_count"`
	ByteSize     int64 `json:"byte_size"`
	NextOffset   int64 `json:"next_offset"`
}

// HealthStatus indicates the health of the event bus.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Status    string        `json:"status"`
	Errors    []string      `json:"errors,omitempty"`
	Metrics   HealthMetrics `json:"metrics"`
	LastCheck time.Time     `json:"last_check"`
}

// HealthMetrics provides operational metrics.
type HealthMetrics struct {
	ActiveTopics    int `json:"active_topics"`
	ActiveConsumers int `json:"active_consumers"`
	DeadLettered    int `json:"dead_lettered"`
}

// RetryConfig defines handler retry behavior.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DeadLetterConfig defines dead-letter behavior after retries are exhausted.
type DeadLetterConfig struct {
	Enabled bool   `json:"enabled"`
	Topic   string `json:"topic"`
}

// ConsumerConfig holds consumer-side settings.
type ConsumerConfig struct {
	GroupID         string        `json:"group_id"`
	AutoOffsetReset string        `json:"auto_offset_reset"` // earliest or latest
	PollInterval    time.Duration `json:"poll_interval"`
	CommitInterval  time.Duration `json:"commit_interval"`
}

// BusConfig holds general event bus configuration.
type BusConfig struct {
	Brokers  []string `json:"brokers"`
	ClientID string   `json:"client_id"`

	Consumer   ConsumerConfig   `json:"consumer"`
	Retry      RetryConfig      `json:"retry"`
	DeadLetter DeadLetterConfig `json:"dead_letter"`

	MetricsCallback MetricsCallback `json:"-"`
}

// MetricsCallback is invoked for bus-level counters.
type MetricsCallback func(metric string, value int, tags map[string]string)

// BusType selects an event bus implementation.
type BusType string

const (
	BusTypeMemory BusType = "memory"
)

// NewEventBus creates a new event bus of the specified type.
func NewEventBus(busType BusType, config BusConfig) (EventBus, error) {
	switch busType {
	case BusTypeMemory:
		return NewMemoryBus(config), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBusType, busType)
	}
}

// Common errors
var (
	ErrUnsupportedBusType = fmt.Errorf("unsupported bus type")
	ErrTopicNotFound      = fmt.Errorf("topic not found")
	ErrTopicExists        = fmt.Errorf("topic already exists")
	ErrInvalidMessage     = fmt.Errorf("invalid message")
	ErrBusNotStarted      = fmt.Errorf("bus not started")
)

// DefaultBusConfig returns the defaults the pipeline starts from.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Brokers:  []string{"localhost:9092"},
		ClientID: "fraudlens",
		Consumer: ConsumerConfig{
			GroupID:         "fraudlens-pipeline",
			AutoOffsetReset: "earliest",
			PollInterval:    10 * time.Millisecond,
			CommitInterval:  time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		DeadLetter: DeadLetterConfig{
			Enabled: true,
			Topic:   "fraudlens-dlq",
		},
	}
}
