package listing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines listing persistence operations
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)

	// Search returns one page of listings matching f, with statuses evaluated at now,
	// ordered by f.SortBy and then by id
	Search(ctx context.Context, f Filter, now time.Time) ([]*Listing, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*Listing, error)

	// FindOpenByTitle returns the active or paused listing of a title, or nil
	FindOpenByTitle(ctx context.Context, titleID uuid.UUID) (*Listing, error)

	// ListExpirable returns non-terminal listings whose expiry is before now
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]*Listing, error)

	Update(ctx context.Context, l *Listing) error
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Listing, error)
	WithTx(tx pgx.Tx) Repository
}
