package stream

import (
	"context"
	"errors"
	"time"
)

// Topic names on the fraudlens bus.
const (
	TopicTransactions = "transactions"
	TopicProfiles     = "customerProfiles"
	TopicFeedback     = "analyst-feedback"
	TopicFraudAlerts  = "fraud-alerts"
	TopicHumanReview  = "human-review"
	TopicApproved     = "approved-transactions"
)

// AllTopics lists every pipeline topic name in declaration order.
func AllTopics() []string {
	return []string{
		TopicTransactions, TopicProfiles, TopicFeedback,
		TopicFraudAlerts, TopicHumanReview, TopicApproved,
	}
}

// PipelineTopics returns the topic set the pipeline depends on. The profile
// topic is compacted so a restart replays only the latest snapshot per
// customer.
func PipelineTopics(partitions int32) []TopicConfig {
	return []TopicConfig{
		{Name: TopicTransactions, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 24 * time.Hour},
		{Name: TopicProfiles, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 7 * 24 * time.Hour, CompactionEnabled: true},
		{Name: TopicFeedback, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 7 * 24 * time.Hour},
		{Name: TopicFraudAlerts, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 24 * time.Hour},
		{Name: TopicHumanReview, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 24 * time.Hour},
		{Name: TopicApproved, Partitions: partitions, ReplicationFactor: 1, RetentionTime: 24 * time.Hour},
	}
}

// EnsureTopics creates the pipeline topics, tolerating ones that already
// exist.
func EnsureTopics(ctx context.Context, bus EventBus, partitions int32) error {
	for _, tc := range PipelineTopics(partitions) {
		if err := bus.CreateTopic(ctx, tc); err != nil && !errors.Is(err, ErrTopicExists) {
			return err
		}
	}
	return nil
}
