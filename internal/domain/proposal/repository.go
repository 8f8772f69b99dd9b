package proposal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines proposal persistence operations
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*Proposal, error)
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*Proposal, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*Proposal, error)

	// LockPendingByListing locks every pending proposal of a listing ordered by id
	LockPendingByListing(ctx context.Context, listingID uuid.UUID) ([]*Proposal, error)

	// ListExpirable returns pending proposals whose expiry is before now
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Proposal, error)

	Update(ctx context.Context, p *Proposal) error
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Proposal, error)
	WithTx(tx pgx.Tx) Repository
}
