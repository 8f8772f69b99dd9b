// Package settlement models the transaction created from an accepted proposal and
// the payment timeline that leads to its settlement.
package settlement

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction
type Status string

const (
	StatusCreated          Status = "created"
	StatusAwaitingPayment  Status = "awaiting_payment"
	StatusPaymentConfirmed Status = "payment_confirmed"
	StatusSettled          Status = "settled"
	StatusCancelled        Status = "cancelled"
	StatusDisputed         Status = "disputed"
	StatusFailed           Status = "failed"
)

// Terminal reports whether s is settled, cancelled or failed
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusCreated:          {StatusAwaitingPayment},
	StatusAwaitingPayment:  {StatusPaymentConfirmed, StatusCancelled, StatusFailed},
	StatusPaymentConfirmed: {StatusSettled, StatusDisputed},
	StatusDisputed:         {StatusSettled, StatusCancelled},
}

// DisputeOutcome is the administrative decision on a dispute
type DisputeOutcome string

const (
	OutcomeSettle DisputeOutcome = "settle"
	OutcomeCancel DisputeOutcome = "cancel"
)

// TimelineEvent is one append-only status change
type TimelineEvent struct {
	At     time.Time `json:"at"`
	Actor  uuid.UUID `json:"actor"`
	Status Status    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

// Transaction is the immutable snapshot of an accepted proposal plus its settlement progress
type Transaction struct {
	ID               uuid.UUID            `json:"id"`
	ListingID        uuid.UUID            `json:"listing_id"`
	ProposalID       uuid.UUID            `json:"proposal_id"`
	TitleID          uuid.UUID            `json:"title_id"`
	BuyerID          uuid.UUID            `json:"buyer_id"`
	SellerID         uuid.UUID            `json:"seller_id"`
	Value            int64                `json:"value"`
	FaceValue        int64                `json:"face_value"`
	Terms            proposal.Terms       `json:"terms"`
	PaymentMethod    shared.PaymentMethod `json:"payment_method,omitempty"`
	PaymentDetails   map[string]string    `json:"payment_details,omitempty"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	PaymentProof     string               `json:"payment_proof,omitempty"`
	Status           Status               `json:"status"`
	ComplianceHold   bool                 `json:"compliance_hold"`
	ComplianceReason string               `json:"compliance_reason,omitempty"`
	ComplianceReport string               `json:"compliance_report,omitempty"`
	HoldClearedBy    *uuid.UUID           `json:"hold_cleared_by,omitempty"`
	HoldClearedAt    *time.Time           `json:"hold_cleared_at,omitempty"`
	PlatformFee      int64                `json:"platform_fee"`
	Timeline         []TimelineEvent      `json:"timeline"`
	Version          int                  `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// New snapshots an accepted proposal together with the face amount its listing offered.
// Value is what the buyer pays; FaceValue is what leaves the title on settlement.
// The transaction starts awaiting payment.
func New(p *proposal.Proposal, titleID, sellerID uuid.UUID, faceValue int64, assessment compliance.Assessment, actor uuid.UUID, now time.Time) (*Transaction, error) {
	if p.Status != proposal.StatusAccepted {
		return nil, shared.Precondition(shared.ErrInvalidStateTransition, "proposal %s is %s, expected accepted", p.ID, p.Status)
	}
	if p.BuyerID == sellerID {
		return nil, shared.Precondition(shared.ErrSelfDealingNotAllowed, "buyer and seller are the same party")
	}
	if faceValue <= 0 {
		return nil, shared.Precondition(shared.ErrInvalidAmount, "face value %d must be positive", faceValue)
	}
	terms := p.Terms
	terms.Guarantees = append([]string(nil), p.Terms.Guarantees...)

	tx := &Transaction{
		ID:               uuid.New(),
		ListingID:        p.ListingID,
		ProposalID:       p.ID,
		TitleID:          titleID,
		BuyerID:          p.BuyerID,
		SellerID:         sellerID,
		Value:            p.Value,
		FaceValue:        faceValue,
		Terms:            terms,
		Status:           StatusCreated,
		ComplianceHold:   assessment.Flagged,
		ComplianceReason: assessment.Reason,
		ComplianceReport: assessment.Report,
		Timeline:         []TimelineEvent{},
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx.append(actor, StatusCreated, "created from accepted proposal", now)
	if err := tx.transition(StatusAwaitingPayment, actor, assessment.Reason, now); err != nil {
		return nil, err
	}
	return tx, nil
}

func (t *Transaction) append(actor uuid.UUID, status Status, note string, now time.Time) {
	t.Timeline = append(t.Timeline, TimelineEvent{At: now, Actor: actor, Status: status, Note: note})
	t.UpdatedAt = now
}

func (t *Transaction) transition(to Status, actor uuid.UUID, note string, now time.Time) error {
	for _, s := range transitions[t.Status] {
		if s == to {
			t.Status = to
			t.append(actor, to, note, now)
			return nil
		}
	}
	return shared.Precondition(shared.ErrInvalidStateTransition, "transaction cannot move from %s to %s", t.Status, to)
}

// Active reports whether the transaction still blocks its title
func (t *Transaction) Active() bool {
	return !t.Status.Terminal()
}

// HoldActive reports whether a compliance hold is set and not cleared
func (t *Transaction) HoldActive() bool {
	return t.ComplianceHold && t.HoldClearedAt == nil
}

// IsParty reports whether actor is the buyer or the seller
func (t *Transaction) IsParty(actor uuid.UUID) bool {
	return actor == t.BuyerID || actor == t.SellerID
}

// SetPaymentReference stores the gateway reference for the buyer's payment
func (t *Transaction) SetPaymentReference(method shared.PaymentMethod, details map[string]string, ref string, now time.Time) error {
	if t.Status != StatusAwaitingPayment {
		return shared.Precondition(shared.ErrInvalidStateTransition, "payment can only be requested while awaiting payment, transaction is %s", t.Status)
	}
	t.PaymentMethod = method
	t.PaymentDetails = details
	t.PaymentReference = ref
	t.UpdatedAt = now
	return nil
}

// ConfirmPayment records the payment proof. Confirming again with the same proof is a
// no-op; a different proof after confirmation fails. It reports whether anything changed.
func (t *Transaction) ConfirmPayment(proof string, actor uuid.UUID, now time.Time) (bool, error) {
	if proof == "" {
		return false, shared.Precondition(shared.ErrInvalidInput, "payment proof reference is required")
	}
	if t.PaymentProof != "" {
		if t.PaymentProof == proof {
			return false, nil
		}
		return false, shared.Precondition(shared.ErrPaymentProofMismatch, "transaction already confirmed with proof %s", t.PaymentProof)
	}
	if err := t.transition(StatusPaymentConfirmed, actor, "payment proof "+proof, now); err != nil {
		return false, err
	}
	t.PaymentProof = proof
	return true, nil
}

// FailPayment moves a transaction awaiting payment to failed
func (t *Transaction) FailPayment(reason string, now time.Time) error {
	return t.transition(StatusFailed, shared.SystemActor, reason, now)
}

// ClearHold records the reviewer sign-off
func (t *Transaction) ClearHold(reviewer uuid.UUID, note string, now time.Time) error {
	if !t.HoldActive() {
		return shared.Precondition(shared.ErrNoComplianceHold, "transaction %s has no active compliance hold", t.ID)
	}
	if t.Status.Terminal() {
		return shared.Precondition(shared.ErrInvalidStateTransition, "transaction is %s", t.Status)
	}
	t.HoldClearedBy = &reviewer
	t.HoldClearedAt = &now
	t.append(reviewer, t.Status, "compliance hold cleared: "+note, now)
	return nil
}

// Cancel is a party abandoning the deal before payment
func (t *Transaction) Cancel(actor uuid.UUID, reason string, now time.Time) error {
	if !t.IsParty(actor) {
		return shared.Precondition(shared.ErrNotTransactionParty, "only the buyer or seller can cancel")
	}
	if t.Status != StatusAwaitingPayment {
		return shared.Precondition(shared.ErrInvalidStateTransition, "transaction can only be cancelled while awaiting payment, it is %s", t.Status)
	}
	return t.transition(StatusCancelled, actor, reason, now)
}

// OpenDispute is a party contesting a confirmed payment
func (t *Transaction) OpenDispute(actor uuid.UUID, reason string, now time.Time) error {
	if !t.IsParty(actor) {
		return shared.Precondition(shared.ErrNotTransactionParty, "only the buyer or seller can open a dispute")
	}
	return t.transition(StatusDisputed, actor, reason, now)
}

// CancelDispute resolves a dispute by cancelling the transaction
func (t *Transaction) CancelDispute(admin uuid.UUID, note string, now time.Time) error {
	if t.Status != StatusDisputed {
		return shared.Precondition(shared.ErrInvalidStateTransition, "transaction is %s, expected disputed", t.Status)
	}
	return t.transition(StatusCancelled, admin, note, now)
}

// CheckSettleable reports why the transaction cannot be settled yet.
// fromDispute allows settling a disputed transaction on administrative resolution.
func (t *Transaction) CheckSettleable(fromDispute bool) error {
	if t.HoldActive() {
		return shared.Precondition(shared.ErrComplianceHoldActive, "transaction %s awaits compliance review: %s", t.ID, t.ComplianceReason)
	}
	if t.Status == StatusPaymentConfirmed || (fromDispute && t.Status == StatusDisputed) {
		return nil
	}
	return shared.Precondition(shared.ErrNotPaymentConfirmed, "transaction is %s", t.Status)
}

// MarkSettled records the fee and the settled timeline entry
func (t *Transaction) MarkSettled(fee int64, actor uuid.UUID, note string, now time.Time) error {
	if err := t.transition(StatusSettled, actor, note, now); err != nil {
		return err
	}
	t.PlatformFee = fee
	return nil
}
