package outbox

import (
	"encoding/json"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// Message stores a domain event for reliable publishing after the writing transaction commits
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	AggregateType audit.AggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	EventType     audit.EventType     `json:"event_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *audit.Event) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.Type,
		Payload:       payload,
		Status:        shared.OutboxStatusPending,
		Attempts:      0,
		CreatedAt:     event.OccurredAt,
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetEvent extracts the domain event from the payload
func (m *Message) GetEvent() (*audit.Event, error) {
	var event audit.Event
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
