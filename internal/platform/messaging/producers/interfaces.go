package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher publishes JSON messages keyed for per-entity ordering
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks payment callbacks the settlement worker gave up on
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, letter DeadLetter) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// topicAdmin is the part of *kafka.Conn used to bootstrap topics
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

var _ topicAdmin = (*kafka.Conn)(nil)
