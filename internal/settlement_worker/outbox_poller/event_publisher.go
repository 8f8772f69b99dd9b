package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/outbox"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// EventPublisher publishes one outbox message
type EventPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

// Notifier delivers an event to one party. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event *audit.Event) error
}

// AuditPublisher projects outbox messages into the audit log and notifies recipients
type AuditPublisher struct {
	outboxRepo outbox.Repository
	auditRepo  audit.Repository
	notifier   Notifier
	logger     *slog.Logger
}

// NewAuditPublisher creates a new publisher; notifier may be nil
func NewAuditPublisher(
	outboxRepo outbox.Repository,
	auditRepo audit.Repository,
	notifier Notifier,
	logger *slog.Logger,
) *AuditPublisher {
	return &AuditPublisher{
		outboxRepo: outboxRepo,
		auditRepo:  auditRepo,
		notifier:   notifier,
		logger:     logger,
	}
}

// Publish records the event and marks the message PROCESSED. An event already in the
// audit log is not recorded or notified again.
func (p *AuditPublisher) Publish(ctx context.Context, message *outbox.Message) error {
	event, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal event from outbox payload", "outbox_id", message.ID, "error", err)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	fresh := true
	if err := p.auditRepo.Create(ctx, event); err != nil {
		if !errors.Is(err, audit.ErrDuplicateEvent{}) {
			return fmt.Errorf("failed to record audit event %s: %w", event.EventID, err)
		}
		logger.Info("Audit event already recorded", "event_id", event.EventID.String())
		fresh = false
	}

	if fresh {
		p.notify(ctx, logger, event)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		return fmt.Errorf("audit write for %s OK, but failed to mark outbox %d as PROCESSED: %w", event.EventID, message.ID, err)
	}
	return nil
}

func (p *AuditPublisher) notify(ctx context.Context, logger *slog.Logger, event *audit.Event) {
	if p.notifier == nil {
		return
	}
	for _, recipient := range event.Recipients {
		if err := p.notifier.Notify(ctx, recipient, event); err != nil {
			logger.Warn("Failed to notify recipient",
				"event_id", event.EventID.String(),
				"recipient_id", recipient.String(),
				"error", err,
			)
		}
	}
}
