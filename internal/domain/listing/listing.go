// Package listing models a marketplace offer (anuncio) of a credit title.
package listing

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
)

// Modality is the negotiation mode of a listing
type Modality string

const (
	ModalityDirectSale  Modality = "venda_direta"
	ModalityAuction     Modality = "leilao"
	ModalityPublicOffer Modality = "oferta_publica"
)

func (m Modality) Valid() bool {
	return m == ModalityDirectSale || m == ModalityAuction || m == ModalityPublicOffer
}

// Status is the lifecycle state of a listing
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFinalized Status = "finalized"
	StatusExpired   Status = "expired"
)

// Terminal reports whether s is finalized or expired
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusExpired
}

// Pricing holds the listing values in centavos
type Pricing struct {
	OriginalValue  int64 `json:"original_value"`
	MinimumValue   int64 `json:"minimum_value"`
	SuggestedValue int64 `json:"suggested_value"`
}

// Validate checks minimum <= suggested <= original <= available
func (p Pricing) Validate(available int64) error {
	if p.MinimumValue <= 0 {
		return shared.Precondition(shared.ErrInvalidPricing, "minimum value must be positive")
	}
	if p.MinimumValue > p.SuggestedValue || p.SuggestedValue > p.OriginalValue || p.OriginalValue > available {
		return shared.Precondition(shared.ErrInvalidPricing,
			"pricing %d <= %d <= %d <= %d does not hold",
			p.MinimumValue, p.SuggestedValue, p.OriginalValue, available)
	}
	return nil
}

// Restrictions limit which buyers the listing is shown to
type Restrictions struct {
	Sectors []string `json:"sectors,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// Listing represents a title offered on the marketplace
type Listing struct {
	ID           uuid.UUID      `json:"id"`
	TitleID      uuid.UUID      `json:"title_id"`
	SellerID     uuid.UUID      `json:"seller_id"`
	TitleType    title.Type     `json:"title_type"`
	Category     title.Category `json:"category"`
	Pricing      Pricing        `json:"pricing"`
	Modality     Modality       `json:"modality"`
	Status       Status         `json:"status"`
	Restrictions Restrictions   `json:"restrictions"`
	ExpiresAt    time.Time      `json:"expires_at"`
	ProposalTTL  time.Duration  `json:"proposal_ttl,omitempty"`
	FinalizedAt  *time.Time     `json:"finalized_at,omitempty"`
	Version      int            `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewListingParams carries the seller's listing request
type NewListingParams struct {
	Pricing      Pricing
	Modality     Modality
	ExpiresAt    time.Time
	ProposalTTL  time.Duration
	Restrictions Restrictions
}

// New builds an active listing for t. Callers check the title status and open listings.
func New(t *title.Title, p NewListingParams, now time.Time) (*Listing, error) {
	if !p.Modality.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown modality %q", p.Modality)
	}
	if !p.ExpiresAt.After(now) {
		return nil, shared.Precondition(shared.ErrInvalidInput, "expiry must be in the future")
	}
	if p.ProposalTTL < 0 {
		return nil, shared.Precondition(shared.ErrInvalidInput, "proposal ttl cannot be negative")
	}
	if err := p.Pricing.Validate(t.AvailableValue); err != nil {
		return nil, err
	}
	return &Listing{
		ID:           uuid.New(),
		TitleID:      t.ID,
		SellerID:     t.OwnerID,
		TitleType:    t.Type,
		Category:     t.Category,
		Pricing:      p.Pricing,
		Modality:     p.Modality,
		Status:       StatusActive,
		Restrictions: p.Restrictions,
		ExpiresAt:    p.ExpiresAt,
		ProposalTTL:  p.ProposalTTL,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsActiveAt reports whether the listing accepts proposals at now
func (l *Listing) IsActiveAt(now time.Time) bool {
	return l.Status == StatusActive && !l.ExpiresAt.Before(now)
}

// EffectiveStatus is the status a reader should see, counting expiry that the sweep has not applied yet
func (l *Listing) EffectiveStatus(now time.Time) Status {
	if !l.Status.Terminal() && l.ExpiresAt.Before(now) {
		return StatusExpired
	}
	return l.Status
}

func (l *Listing) move(to Status, allowed []Status, now time.Time) error {
	for _, s := range allowed {
		if l.Status == s {
			l.Status = to
			l.UpdatedAt = now
			return nil
		}
	}
	return shared.Precondition(shared.ErrInvalidStateTransition, "listing cannot move from %s to %s", l.Status, to)
}

// Pause hides an active listing
func (l *Listing) Pause(now time.Time) error {
	return l.move(StatusPaused, []Status{StatusActive}, now)
}

// Resume reactivates a paused listing that has not expired
func (l *Listing) Resume(now time.Time) error {
	if l.ExpiresAt.Before(now) {
		return shared.Precondition(shared.ErrListingNotActive, "listing expired at %s", l.ExpiresAt.Format(time.RFC3339))
	}
	return l.move(StatusActive, []Status{StatusPaused}, now)
}

// Finalize closes the listing after a proposal was accepted
func (l *Listing) Finalize(now time.Time) error {
	if err := l.move(StatusFinalized, []Status{StatusActive}, now); err != nil {
		return err
	}
	l.FinalizedAt = &now
	return nil
}

// Expire closes a non-terminal listing
func (l *Listing) Expire(now time.Time) error {
	return l.move(StatusExpired, []Status{StatusActive, StatusPaused}, now)
}

// ProposalExpiry returns when a proposal submitted at now expires. It never exceeds the listing expiry.
func (l *Listing) ProposalExpiry(defaultTTL time.Duration, now time.Time) time.Time {
	ttl := defaultTTL
	if l.ProposalTTL > 0 {
		ttl = l.ProposalTTL
	}
	exp := now.Add(ttl)
	if exp.After(l.ExpiresAt) {
		return l.ExpiresAt
	}
	return exp
}
