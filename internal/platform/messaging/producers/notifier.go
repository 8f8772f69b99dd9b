package producers

import (
	"context"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/google/uuid"
)

// Notification is the message delivered to one recipient of a marketplace event
type Notification struct {
	RecipientID   uuid.UUID           `json:"recipient_id"`
	EventID       uuid.UUID           `json:"event_id"`
	EventType     audit.EventType     `json:"event_type"`
	AggregateType audit.AggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	Summary       string              `json:"summary"`
	Data          map[string]string   `json:"data,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// KafkaNotifier delivers notifications through a topic keyed by recipient
type KafkaNotifier struct {
	publisher MessagePublisher
}

func NewKafkaNotifier(publisher MessagePublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

// Notify publishes event for userID
func (n *KafkaNotifier) Notify(ctx context.Context, userID uuid.UUID, event *audit.Event) error {
	return n.publisher.Publish(ctx, userID.String(), Notification{
		RecipientID:   userID,
		EventID:       event.EventID,
		EventType:     event.Type,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Summary:       event.Summary,
		Data:          event.Data,
		OccurredAt:    event.OccurredAt,
	})
}
