// Package audit defines the marketplace domain events. Every state transition emits
// one; they are written to the outbox, projected into the audit log and fanned out as
// notifications.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// AggregateType names the entity an event belongs to
type AggregateType string

const (
	AggregateTitle       AggregateType = "credit_title"
	AggregateListing     AggregateType = "listing"
	AggregateProposal    AggregateType = "proposal"
	AggregateTransaction AggregateType = "transaction"
	AggregateAccount     AggregateType = "account"
)

// EventType defines the kind of state change
type EventType string

const (
	TitleRegistered         EventType = "TITLE_REGISTERED"
	TitleDocumentAttached   EventType = "TITLE_DOCUMENT_ATTACHED"
	TitleSubmitted          EventType = "TITLE_SUBMITTED"
	TitleValidated          EventType = "TITLE_VALIDATED"
	TitleRejected           EventType = "TITLE_REJECTED"
	TitleTokenizing         EventType = "TITLE_TOKENIZING"
	TitleTokenized          EventType = "TITLE_TOKENIZED"
	TitleTokenizationFailed EventType = "TITLE_TOKENIZATION_FAILED"
	TitleCancelled          EventType = "TITLE_CANCELLED"
	TitleReversed           EventType = "TITLE_REVERSED"
	TitleExpired            EventType = "TITLE_EXPIRED"
	TitleSold               EventType = "TITLE_SOLD"

	ListingCreated   EventType = "LISTING_CREATED"
	ListingPaused    EventType = "LISTING_PAUSED"
	ListingResumed   EventType = "LISTING_RESUMED"
	ListingFinalized EventType = "LISTING_FINALIZED"
	ListingExpired   EventType = "LISTING_EXPIRED"

	ProposalSubmitted EventType = "PROPOSAL_SUBMITTED"
	ProposalRevised   EventType = "PROPOSAL_REVISED"
	ProposalAccepted  EventType = "PROPOSAL_ACCEPTED"
	ProposalRejected  EventType = "PROPOSAL_REJECTED"
	ProposalCancelled EventType = "PROPOSAL_CANCELLED"
	ProposalExpired   EventType = "PROPOSAL_EXPIRED"

	TransactionCreated   EventType = "TRANSACTION_CREATED"
	PaymentRequested     EventType = "PAYMENT_REQUESTED"
	PaymentConfirmed     EventType = "PAYMENT_CONFIRMED"
	PaymentFailed        EventType = "PAYMENT_FAILED"
	ComplianceHoldSet    EventType = "COMPLIANCE_HOLD_SET"
	ComplianceHoldClear  EventType = "COMPLIANCE_HOLD_CLEARED"
	TransactionCancelled EventType = "TRANSACTION_CANCELLED"
	DisputeOpened        EventType = "DISPUTE_OPENED"
	TransactionSettled   EventType = "TRANSACTION_SETTLED"

	AccountOpened       EventType = "ACCOUNT_OPENED"
	DepositRequested    EventType = "DEPOSIT_REQUESTED"
	DepositSettled      EventType = "DEPOSIT_SETTLED"
	WithdrawalRequested EventType = "WITHDRAWAL_REQUESTED"
	WithdrawalSettled   EventType = "WITHDRAWAL_SETTLED"
)

// Event represents one domain event
type Event struct {
	EventID       uuid.UUID         `json:"event_id" bson:"event_id"`
	AggregateType AggregateType     `json:"aggregate_type" bson:"aggregate_type"`
	AggregateID   uuid.UUID         `json:"aggregate_id" bson:"aggregate_id"`
	Type          EventType         `json:"type" bson:"type"`
	Actor         uuid.UUID         `json:"actor" bson:"actor"`
	Recipients    []uuid.UUID       `json:"recipients,omitempty" bson:"recipients,omitempty"`
	Summary       string            `json:"summary" bson:"summary"`
	Data          map[string]string `json:"data,omitempty" bson:"data,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at" bson:"occurred_at"`
	RecordedAt    *time.Time        `json:"recorded_at,omitempty" bson:"recorded_at,omitempty"`
}

// NewEvent builds an event for an aggregate
func NewEvent(aggType AggregateType, aggID uuid.UUID, typ EventType, actor uuid.UUID, summary string, now time.Time, recipients ...uuid.UUID) *Event {
	return &Event{
		EventID:       uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID,
		Type:          typ,
		Actor:         actor,
		Recipients:    dedupe(recipients),
		Summary:       summary,
		Data:          map[string]string{},
		OccurredAt:    now,
	}
}

// With adds a data attribute and returns the event for chaining
func (e *Event) With(key, value string) *Event {
	e.Data[key] = value
	return e
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
