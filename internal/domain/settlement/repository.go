package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines transaction persistence operations
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByPaymentReference(ctx context.Context, ref string) (*Transaction, error)

	// FindActiveByTitle returns a non-terminal transaction for the title, or nil
	FindActiveByTitle(ctx context.Context, titleID uuid.UUID) (*Transaction, error)
	ListByParty(ctx context.Context, partyID uuid.UUID) ([]*Transaction, error)

	Update(ctx context.Context, t *Transaction) error
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)
	WithTx(tx pgx.Tx) Repository
}
