package title

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines credit title persistence operations
type Repository interface {
	Create(ctx context.Context, t *Title) error
	GetByID(ctx context.Context, id uuid.UUID) (*Title, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Title, error)

	// ListMaturedValidated returns validated titles whose maturity date is before now
	ListMaturedValidated(ctx context.Context, now time.Time, limit int) ([]*Title, error)

	// NextNumber reserves the next human-readable title number for the given year
	NextNumber(ctx context.Context, year int) (string, error)

	// Update persists t if its version still matches, then bumps t.Version
	Update(ctx context.Context, t *Title) error

	// LockForUpdate acquires a pessimistic lock for the surrounding transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Title, error)
	WithTx(tx pgx.Tx) Repository
}
