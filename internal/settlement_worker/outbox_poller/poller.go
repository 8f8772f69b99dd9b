// Package outbox_poller drains the transactional outbox: every committed domain event
// is projected into the audit log and fanned out to its recipients.
package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/domain/outbox"
	"github.com/credit-title-marketplace/internal/domain/shared"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// processPendingMessages publishes one batch in creation order. A failed message
// is retried on later ticks until maxRetryAttempts, then parked as FAILED_TO_PUBLISH.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		logger := p.logger.With("outbox_id", msg.ID, "event_id", msg.EventID.String(), "event_type", string(msg.EventType))

		if err := p.publisher.Publish(ctx, msg); err != nil {
			logger.Error("Failed to publish outbox message", "current_attempts", msg.Attempts, "error", err)

			if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
				logger.Error("Failed to increment attempts for outbox message", "error", errInc)
				continue
			}

			if msg.Attempts+1 >= p.maxRetryAttempts {
				logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
					"attempts_made", msg.Attempts+1,
				)
				if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
					logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "error", errUpdate)
				}
			}
			continue
		}
		logger.Debug("Published outbox message")
	}
	return nil
}
