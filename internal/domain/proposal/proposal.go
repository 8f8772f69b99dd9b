// Package proposal models a buyer's offer against a listing.
package proposal

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// Purpose is what the buyer intends to do with the credit
type Purpose string

const (
	PurposeAcquisition  Purpose = "aquisicao"
	PurposeCompensation Purpose = "compensacao"
)

func (p Purpose) Valid() bool {
	return p == PurposeAcquisition || p == PurposeCompensation
}

// Status is the lifecycle state of a proposal
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terms are the payment conditions offered by the buyer
type Terms struct {
	Installments int      `json:"installments"`
	DownPayment  int64    `json:"down_payment"`
	Guarantees   []string `json:"guarantees,omitempty"`
	Purpose      Purpose  `json:"purpose"`
}

// Validate checks the terms against the offered value
func (t Terms) Validate(value int64) error {
	if t.Installments < 1 {
		return shared.Precondition(shared.ErrInvalidInput, "installments must be at least 1")
	}
	if t.DownPayment < 0 || t.DownPayment > value {
		return shared.Precondition(shared.ErrInvalidInput, "down payment must be between 0 and the offered value")
	}
	if !t.Purpose.Valid() {
		return shared.Precondition(shared.ErrInvalidInput, "unknown purpose %q", t.Purpose)
	}
	return nil
}

// Proposal represents a buyer's offer
type Proposal struct {
	ID             uuid.UUID  `json:"id"`
	ListingID      uuid.UUID  `json:"listing_id"`
	BuyerID        uuid.UUID  `json:"buyer_id"`
	Value          int64      `json:"value"`
	Terms          Terms      `json:"terms"`
	Message        string     `json:"message,omitempty"`
	Documents      []string   `json:"documents,omitempty"`
	Status         Status     `json:"status"`
	ExpiresAt      time.Time  `json:"expires_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewProposalParams is what a buyer submits
type NewProposalParams struct {
	BuyerID   uuid.UUID
	Value     int64
	Terms     Terms
	Message   string
	Documents []string
}

// New builds a pending proposal. Listing level checks belong to the caller.
func New(listingID uuid.UUID, p NewProposalParams, expiresAt, now time.Time) (*Proposal, error) {
	if p.Value <= 0 {
		return nil, shared.Precondition(shared.ErrInvalidAmount, "offered value must be positive")
	}
	if err := p.Terms.Validate(p.Value); err != nil {
		return nil, err
	}
	return &Proposal{
		ID:        uuid.New(),
		ListingID: listingID,
		BuyerID:   p.BuyerID,
		Value:     p.Value,
		Terms:     p.Terms,
		Message:   p.Message,
		Documents: p.Documents,
		Status:    StatusPending,
		ExpiresAt: expiresAt,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ExpiredAt reports whether a pending proposal is past its expiry at now
func (p *Proposal) ExpiredAt(now time.Time) bool {
	return p.Status == StatusPending && p.ExpiresAt.Before(now)
}

// Revise replaces value and terms while the proposal is pending
func (p *Proposal) Revise(value int64, terms Terms, message string, now time.Time) error {
	if p.Status != StatusPending {
		return shared.Precondition(shared.ErrNotPending, "proposal is %s", p.Status)
	}
	if p.ExpiredAt(now) {
		return shared.Precondition(shared.ErrProposalExpired, "proposal expired at %s", p.ExpiresAt.Format(time.RFC3339))
	}
	if value <= 0 {
		return shared.Precondition(shared.ErrInvalidAmount, "offered value must be positive")
	}
	if err := terms.Validate(value); err != nil {
		return err
	}
	p.Value = value
	p.Terms = terms
	if message != "" {
		p.Message = message
	}
	p.UpdatedAt = now
	return nil
}

// Accept marks the proposal accepted. It re-checks expiry against wall clock.
func (p *Proposal) Accept(now time.Time) error {
	if p.Status != StatusPending {
		return shared.Precondition(shared.ErrNotPending, "proposal is %s", p.Status)
	}
	if p.ExpiredAt(now) {
		return shared.Precondition(shared.ErrProposalExpired, "proposal expired at %s", p.ExpiresAt.Format(time.RFC3339))
	}
	p.decide(StatusAccepted, "", now)
	return nil
}

// Reject closes the proposal. Rejecting an already rejected proposal is a no-op.
// It reports whether the proposal changed.
func (p *Proposal) Reject(reason string, now time.Time) (bool, error) {
	switch p.Status {
	case StatusRejected:
		return false, nil
	case StatusPending:
		p.decide(StatusRejected, reason, now)
		return true, nil
	}
	return false, shared.Precondition(shared.ErrNotPending, "proposal is %s", p.Status)
}

// Cancel is the buyer withdrawing the proposal; repeated calls are no-ops
func (p *Proposal) Cancel(reason string, now time.Time) (bool, error) {
	switch p.Status {
	case StatusCancelled:
		return false, nil
	case StatusPending:
		p.decide(StatusCancelled, reason, now)
		return true, nil
	}
	return false, shared.Precondition(shared.ErrNotPending, "proposal is %s", p.Status)
}

// Expire closes a pending proposal whose expiry passed; other states are left alone
func (p *Proposal) Expire(now time.Time) bool {
	if !p.ExpiredAt(now) {
		return false
	}
	p.decide(StatusExpired, "expired", now)
	return true
}

func (p *Proposal) decide(to Status, reason string, now time.Time) {
	p.Status = to
	p.DecisionReason = reason
	p.DecidedAt = &now
	p.UpdatedAt = now
}
