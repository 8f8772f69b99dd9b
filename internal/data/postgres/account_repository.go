package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountEntity = "account"

// AccountRepository implements the wallet.AccountRepository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL wallet account repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.AccountRepository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls.
func (r *AccountRepository) WithTx(tx pgx.Tx) wallet.AccountRepository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new account. One account per owner is enforced by a unique constraint.
func (r *AccountRepository) Create(ctx context.Context, acc *wallet.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, kind, available, pending, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.OwnerID,
		acc.Kind,
		acc.Available,
		acc.Pending,
		acc.Currency,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return shared.Precondition(shared.ErrAccountAlreadyExists, "owner %s already has an account", acc.OwnerID)
		}
		r.logger.Error("Failed to create account", "owner_id", acc.OwnerID.String(), "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT id, owner_id, kind, available, pending, currency, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: accountEntity, ID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// GetByOwnerID retrieves the account of an owner. Returns nil, nil when the owner has none.
func (r *AccountRepository) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT id, owner_id, kind, available, pending, currency, version, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get account by owner", "owner_id", ownerID.String(), "error", err)
		return nil, fmt.Errorf("failed to get account by owner: %w", err)
	}

	return acc, nil
}

// Update persists balances if the stored version still matches
func (r *AccountRepository) Update(ctx context.Context, acc *wallet.Account) error {
	query := `
		UPDATE accounts
		SET available = $1, pending = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
	`

	result, err := r.querier.Exec(ctx, query, acc.Available, acc.Pending, acc.UpdatedAt, acc.ID, acc.Version)
	if err != nil {
		r.logger.Error("Failed to update account", "id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrentModification{Entity: accountEntity, ID: acc.ID}
	}

	acc.Version++
	return nil
}

// LockForUpdate obtains a row lock on the account for the surrounding transaction
func (r *AccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	query := `
		SELECT id, owner_id, kind, available, pending, currency, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: accountEntity, ID: id}
		}
		r.logger.Error("Failed to lock account for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return acc, nil
}

func scanAccount(row pgx.Row) (*wallet.Account, error) {
	var acc wallet.Account
	err := row.Scan(
		&acc.ID,
		&acc.OwnerID,
		&acc.Kind,
		&acc.Available,
		&acc.Pending,
		&acc.Currency,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
