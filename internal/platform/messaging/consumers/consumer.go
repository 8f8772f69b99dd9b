package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/credit-title-marketplace/internal/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. An error redelivers the same message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// messageReader is the part of *kafka.Reader the consumer loop uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	fetchRetryDelay      = time.Second
	redeliveryInitial    = 200 * time.Millisecond
	redeliveryMaxBackoff = 30 * time.Second
)

// KafkaConsumer reads one topic as a member of a consumer group. Messages are
// handled one at a time and committed in order; a message whose handler fails
// is retried in place so its offset is never committed past.
type KafkaConsumer struct {
	reader  messageReader
	logger  *slog.Logger
	topic   string
	groupID string

	fetchDelay        time.Duration
	redeliveryInitial time.Duration
	redeliveryMax     time.Duration
}

// NewKafkaConsumer creates a group reader on the payment callback topic
func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.PaymentCallbackTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset(cfg.StartOffset),
	})
	return newKafkaConsumer(reader, logger, cfg.PaymentCallbackTopic, cfg.ConsumerGroup)
}

func newKafkaConsumer(reader messageReader, logger *slog.Logger, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:            reader,
		logger:            logger.With("topic", topic, "group_id", groupID),
		topic:             topic,
		groupID:           groupID,
		fetchDelay:        fetchRetryDelay,
		redeliveryInitial: redeliveryInitial,
		redeliveryMax:     redeliveryMaxBackoff,
	}
}

// Subscribe starts the consume loop in the background. It stops when ctx is done.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic")
	go c.run(ctx, handler)
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return
			}
			c.logger.Error("Failed to fetch message from Kafka", "error", err)
			select {
			case <-ctx.Done():
				c.logger.Info("Context canceled, stopping consumer")
				return
			case <-time.After(c.fetchDelay):
			}
			continue
		}

		if !c.handle(ctx, msg, handler) {
			c.logger.Info("Context canceled, stopping consumer", "uncommitted_offset", msg.Offset)
			return
		}
	}
}

// handle runs handler until it succeeds, then commits msg. It reports false
// when ctx ended first; the message is then left for the next group member.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	c.logger.Debug("Received message from Kafka",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
	)

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = c.redeliveryInitial
	schedule.MaxInterval = c.redeliveryMax
	schedule.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return handler(ctx, msg.Key, msg.Value)
	}, backoff.WithContext(schedule, ctx), func(err error, delay time.Duration) {
		c.logger.Error("Failed to process message, redelivering",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	})
	if err != nil {
		return false
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message after successful processing",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return ctx.Err() == nil
	}
	c.logger.Debug("Message committed", "partition", msg.Partition, "offset", msg.Offset)
	return true
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

// startOffset maps the configured offset onto a kafka-go start offset. Only
// kafka.LastOffset is honoured; anything else replays from the beginning.
func startOffset(configured int64) int64 {
	if configured == kafka.LastOffset {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}
