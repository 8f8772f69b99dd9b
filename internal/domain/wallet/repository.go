package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines account persistence operations
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*Account, error)

	// Update persists balances if the version still matches, then bumps account.Version
	Update(ctx context.Context, account *Account) error

	// LockForUpdate acquires a pessimistic lock for transaction processing
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	WithTx(tx pgx.Tx) AccountRepository
}

// TransactionRepository manages wallet transaction persistence with pagination support
type TransactionRepository interface {
	Create(ctx context.Context, wtx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*Transaction, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Transaction, error)
	CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)

	// UpdateStatus persists the status, external reference and completion time
	UpdateStatus(ctx context.Context, wtx *Transaction) error
	WithTx(tx pgx.Tx) TransactionRepository
}
