package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/platform/messaging/producers"
	"github.com/credit-title-marketplace/internal/settlement_worker/service"
)

// PaymentCallbackHandler handles payment gateway callbacks delivered through Kafka
type PaymentCallbackHandler struct {
	processor service.CallbackProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

// NewPaymentCallbackHandler creates a new handler
func NewPaymentCallbackHandler(
	logger *slog.Logger,
	processor service.CallbackProcessor,
	producer producers.DeadLetterPublisher,
) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes one Kafka message. Returning nil commits the offset.
func (h *PaymentCallbackHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cb shared.PaymentCallback
	if err := json.Unmarshal(value, &cb); err != nil {
		h.logger.Error("Failed to unmarshal payment callback from Kafka message",
			"error", err,
			"message_key", string(key),
		)
		return h.deadLetter(ctx, producers.DeadLetter{Key: key, Value: value}, "Failed to unmarshal payment callback", err)
	}

	logger := h.logger
	if cb.CorrelationID != "" {
		logger = h.logger.With("correlation_id", cb.CorrelationID)
	}

	logger.Info("Received payment callback for processing",
		"payment_ref", cb.PaymentRef,
		"kind", string(cb.Kind),
		"status", string(cb.Status),
	)

	if err := h.processor.ProcessCallback(ctx, &cb); err != nil {
		if errors.Is(err, service.ErrUnprocessable) {
			return h.deadLetter(ctx, producers.DeadLetter{
				Key:           key,
				Value:         value,
				Kind:          string(cb.Kind),
				PaymentRef:    cb.PaymentRef,
				CorrelationID: cb.CorrelationID,
			}, "Payment callback cannot be applied", err)
		}
		logger.Error("Failed to process payment callback",
			"payment_ref", cb.PaymentRef,
			"error", err,
		)
		return fmt.Errorf("processing payment callback %s failed: %w", cb.PaymentRef, err)
	}

	logger.Info("Successfully processed payment callback", "payment_ref", cb.PaymentRef)
	return nil
}

// deadLetter parks a message that will never succeed. When the DLQ is unavailable
// the original error is returned so the offset stays uncommitted.
func (h *PaymentCallbackHandler) deadLetter(ctx context.Context, letter producers.DeadLetter, msg string, cause error) error {
	if h.producer != nil {
		letter.Reason = fmt.Sprintf("%s: %s", msg, cause.Error())
		if dlqErr := h.producer.PublishToDLQ(ctx, letter); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"original_error", cause,
				"message_key", string(letter.Key),
			)
		} else {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", msg, cause)
}
