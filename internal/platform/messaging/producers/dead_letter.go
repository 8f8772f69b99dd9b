package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/segmentio/kafka-go"
)

// ErrDLQDisabled is returned when no dead letter topic is configured
var ErrDLQDisabled = errors.New("dead letter queue is disabled")

// DeadLetter is one payment callback message that cannot be applied. Kind,
// PaymentRef and CorrelationID are empty when the message never decoded.
type DeadLetter struct {
	Key           []byte
	Value         []byte
	Reason        string
	Kind          string
	PaymentRef    string
	CorrelationID string
}

// deadLetterRecord is the JSON body written to the dead letter topic
type deadLetterRecord struct {
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	Reason        string `json:"dlq_reason"`
	CallbackKind  string `json:"callback_kind,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	FailedAt      string `json:"failed_at"`
}

type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
	now      func() time.Time
}

// NewDLQProducer returns a nil producer when cfg.DLQTopic is empty
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured, unprocessable payment callbacks stay on the callback topic")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for dlq producer: %w", err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DLQProducer{
		logger:   logger,
		writer:   writer,
		dlqTopic: cfg.DLQTopic,
		now:      time.Now,
	}, nil
}

// PublishToDLQ writes letter keyed by its original key. The callback kind,
// payment reference and correlation id are copied into headers for replay.
func (p *DLQProducer) PublishToDLQ(ctx context.Context, letter DeadLetter) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	body, err := json.Marshal(deadLetterRecord{
		OriginalKey:   string(letter.Key),
		OriginalValue: string(letter.Value),
		Reason:        letter.Reason,
		CallbackKind:  letter.Kind,
		PaymentRef:    letter.PaymentRef,
		CorrelationID: letter.CorrelationID,
		FailedAt:      p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	headers := []kafka.Header{{Key: "dlq-reason", Value: []byte(letter.Reason)}}
	for _, h := range []struct{ key, value string }{
		{"callback-kind", letter.Kind},
		{"payment-ref", letter.PaymentRef},
		{"correlation-id", letter.CorrelationID},
	} {
		if h.value != "" {
			headers = append(headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}

	msg := kafka.Message{Key: letter.Key, Value: body, Headers: headers}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish payment callback to DLQ",
			"topic", p.dlqTopic,
			"payment_ref", letter.PaymentRef,
			"error", err,
		)
		return fmt.Errorf("failed to publish to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Info("Published payment callback to DLQ",
		"topic", p.dlqTopic,
		"payment_ref", letter.PaymentRef,
		"kind", letter.Kind,
		"reason", letter.Reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ Kafka message producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
