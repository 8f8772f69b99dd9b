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

const walletTransactionEntity = "wallet_transaction"

const walletTransactionColumns = `id, account_id, type, amount, method, counterpart_ref, external_ref, status, created_at, completed_at`

// WalletTransactionRepository implements the wallet.TransactionRepository interface for PostgreSQL
type WalletTransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewWalletTransactionRepository creates a new PostgreSQL wallet transaction repository
func NewWalletTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.TransactionRepository {
	return &WalletTransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *WalletTransactionRepository) WithTx(tx pgx.Tx) wallet.TransactionRepository {
	return &WalletTransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a wallet transaction
func (r *WalletTransactionRepository) Create(ctx context.Context, wtx *wallet.Transaction) error {
	query := `
		INSERT INTO wallet_transactions (` + walletTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		wtx.ID,
		wtx.AccountID,
		wtx.Type,
		wtx.Amount,
		wtx.Method,
		wtx.CounterpartRef,
		wtx.ExternalRef,
		wtx.Status,
		wtx.CreatedAt,
		wtx.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create wallet transaction",
			"id", wtx.ID.String(),
			"account_id", wtx.AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create wallet transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet transaction by its ID
func (r *WalletTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Transaction, error) {
	query := `SELECT ` + walletTransactionColumns + ` FROM wallet_transactions WHERE id = $1`

	wtx, err := scanWalletTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: walletTransactionEntity, ID: id}
		}
		r.logger.Error("Failed to get wallet transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}

	return wtx, nil
}

// GetByExternalRef finds the wallet transaction a gateway callback refers to
func (r *WalletTransactionRepository) GetByExternalRef(ctx context.Context, ref string) (*wallet.Transaction, error) {
	query := `SELECT ` + walletTransactionColumns + ` FROM wallet_transactions WHERE external_ref = $1`

	wtx, err := scanWalletTransaction(r.querier.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: walletTransactionEntity}
		}
		r.logger.Error("Failed to get wallet transaction by external ref", "external_ref", ref, "error", err)
		return nil, fmt.Errorf("failed to get wallet transaction by external ref: %w", err)
	}

	return wtx, nil
}

// ListByAccountID returns a page of an account's wallet transactions, newest first
func (r *WalletTransactionRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	query := `
		SELECT ` + walletTransactionColumns + `
		FROM wallet_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list wallet transactions", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	txs := []*wallet.Transaction{}
	for rows.Next() {
		wtx, err := scanWalletTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan wallet transaction", "error", err)
			return nil, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		txs = append(txs, wtx)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over wallet transactions", "error", err)
		return nil, fmt.Errorf("error iterating over wallet transactions: %w", err)
	}

	return txs, nil
}

// CountByAccountID returns the number of wallet transactions of an account
func (r *WalletTransactionRepository) CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM wallet_transactions WHERE account_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		r.logger.Error("Failed to count wallet transactions", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	return count, nil
}

// UpdateStatus moves a wallet transaction forward. Amounts are never rewritten.
func (r *WalletTransactionRepository) UpdateStatus(ctx context.Context, wtx *wallet.Transaction) error {
	query := `
		UPDATE wallet_transactions
		SET status = $1, external_ref = $2, completed_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, wtx.Status, wtx.ExternalRef, wtx.CompletedAt, wtx.ID)
	if err != nil {
		r.logger.Error("Failed to update wallet transaction status",
			"id", wtx.ID.String(),
			"status", string(wtx.Status),
			"error", err,
		)
		return fmt.Errorf("failed to update wallet transaction status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrNotFound{Entity: walletTransactionEntity, ID: wtx.ID}
	}

	return nil
}

func scanWalletTransaction(row pgx.Row) (*wallet.Transaction, error) {
	var wtx wallet.Transaction
	err := row.Scan(
		&wtx.ID,
		&wtx.AccountID,
		&wtx.Type,
		&wtx.Amount,
		&wtx.Method,
		&wtx.CounterpartRef,
		&wtx.ExternalRef,
		&wtx.Status,
		&wtx.CreatedAt,
		&wtx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wtx, nil
}
