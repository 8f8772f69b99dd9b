package producers

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

const topicReadRetries = 4

// topicReadInterval spaces partition reads while the broker settles
var topicReadInterval = 2 * time.Second

// ensureTopic creates topic unless the broker already reports partitions for it.
// An unknown topic is created at once; other read errors are retried first and
// creation is still attempted after them.
func ensureTopic(admin topicAdmin, topic string, numPartitions, replicationFactor int, logger *slog.Logger) error {
	var partitions []kafka.Partition
	read := func() error {
		p, err := admin.ReadPartitions(topic)
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		partitions = p
		return nil
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("Failed to read topic partitions, retrying", "topic", topic, "delay", delay.String(), "error", err)
	}

	schedule := backoff.WithMaxRetries(backoff.NewConstantBackOff(topicReadInterval), topicReadRetries)
	readErr := backoff.RetryNotify(read, schedule, notify)
	if readErr == nil && len(partitions) > 0 {
		logger.Info("Kafka topic already exists", "topic", topic, "partitions", len(partitions))
		return nil
	}
	if readErr != nil && !errors.Is(readErr, kafka.UnknownTopicOrPartition) {
		logger.Warn("Could not read topic partitions, attempting to create topic", "topic", topic, "error", readErr)
	}

	cfg := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(numPartitions, 1),
		ReplicationFactor: max(replicationFactor, 1),
	}
	if err := admin.CreateTopics(cfg); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}
	logger.Info("Kafka topic ready", "topic", topic, "partitions", cfg.NumPartitions, "replication_factor", cfg.ReplicationFactor)
	return nil
}
