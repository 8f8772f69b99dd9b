package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/segmentio/kafka-go"
)

// TopicProducer publishes JSON messages to one Kafka topic
type TopicProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewPaymentCallbackProducer creates the producer the API uses to enqueue gateway webhooks
func NewPaymentCallbackProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(logger, cfg, cfg.PaymentCallbackTopic, kafka.RequireAll)
}

// NewNotificationProducer creates the producer the outbox poller uses to fan out notifications
func NewNotificationProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(logger, cfg, cfg.NotificationTopic, kafka.RequireOne)
}

// newTopicProducer ensures topic exists and builds a synchronous writer for it.
// Writes are synchronous so callers only acknowledge work Kafka has accepted.
func newTopicProducer(logger *slog.Logger, cfg *config.KafkaConfig, topic string, acks kafka.RequiredAcks) (*TopicProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for %s producer: %w", topic, err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same key, same partition: per-entity ordering
		RequiredAcks: acks,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &TopicProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

// Publish marshals value to JSON and writes it under key
func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for topic %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka message producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
