package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionEntity = "transaction"

const transactionColumns = `id, listing_id, proposal_id, title_id, buyer_id, seller_id, value, face_value,
		terms, payment_method, payment_details, payment_reference, payment_proof, status, compliance_hold,
		compliance_reason, compliance_report, hold_cleared_by, hold_cleared_at, platform_fee, timeline,
		version, created_at, updated_at`

// TransactionRepository implements the settlement.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL marketplace transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx pgx.Tx) settlement.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new marketplace transaction
func (r *TransactionRepository) Create(ctx context.Context, t *settlement.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	terms, details, timeline, err := encodeTransactionJSON(t)
	if err != nil {
		return err
	}

	_, err = r.querier.Exec(ctx, query,
		t.ID,
		t.ListingID,
		t.ProposalID,
		t.TitleID,
		t.BuyerID,
		t.SellerID,
		t.Value,
		t.FaceValue,
		terms,
		t.PaymentMethod,
		details,
		t.PaymentReference,
		t.PaymentProof,
		t.Status,
		t.ComplianceHold,
		t.ComplianceReason,
		t.ComplianceReport,
		t.HoldClearedBy,
		t.HoldClearedAt,
		t.PlatformFee,
		timeline,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a marketplace transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: transactionEntity, ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

// LockForUpdate obtains a row lock on the transaction
func (r *TransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: transactionEntity, ID: id}
		}
		r.logger.Error("Failed to lock transaction for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock transaction for update: %w", err)
	}

	return t, nil
}

// GetByPaymentReference finds the transaction a gateway callback refers to
func (r *TransactionRepository) GetByPaymentReference(ctx context.Context, ref string) (*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_reference = $1`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: transactionEntity}
		}
		r.logger.Error("Failed to get transaction by payment reference", "payment_reference", ref, "error", err)
		return nil, fmt.Errorf("failed to get transaction by payment reference: %w", err)
	}

	return t, nil
}

// FindActiveByTitle returns the open transaction of a title, or nil when there is none
func (r *TransactionRepository) FindActiveByTitle(ctx context.Context, titleID uuid.UUID) (*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE title_id = $1 AND status IN ('created', 'awaiting_payment', 'payment_confirmed', 'disputed')
		LIMIT 1`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, titleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find active transaction", "title_id", titleID.String(), "error", err)
		return nil, fmt.Errorf("failed to find active transaction: %w", err)
	}

	return t, nil
}

// ListByParty returns transactions where the party is buyer or seller, newest first
func (r *TransactionRepository) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*settlement.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC, id`

	rows, err := r.querier.Query(ctx, query, partyID)
	if err != nil {
		r.logger.Error("Failed to list transactions by party", "party_id", partyID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions by party: %w", err)
	}
	defer rows.Close()

	txs := []*settlement.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}
	return txs, nil
}

// Update persists the transaction using optimistic locking on version
func (r *TransactionRepository) Update(ctx context.Context, t *settlement.Transaction) error {
	query := `
		UPDATE transactions
		SET payment_method = $1, payment_details = $2, payment_reference = $3, payment_proof = $4,
			status = $5, compliance_hold = $6, compliance_reason = $7, compliance_report = $8,
			hold_cleared_by = $9, hold_cleared_at = $10, platform_fee = $11, timeline = $12,
			updated_at = $13, version = version + 1
		WHERE id = $14 AND version = $15
	`

	_, details, timeline, err := encodeTransactionJSON(t)
	if err != nil {
		return err
	}

	result, err := r.querier.Exec(ctx, query,
		t.PaymentMethod,
		details,
		t.PaymentReference,
		t.PaymentProof,
		t.Status,
		t.ComplianceHold,
		t.ComplianceReason,
		t.ComplianceReport,
		t.HoldClearedBy,
		t.HoldClearedAt,
		t.PlatformFee,
		timeline,
		t.UpdatedAt,
		t.ID,
		t.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrentModification{Entity: transactionEntity, ID: t.ID}
	}

	t.Version++
	return nil
}

func encodeTransactionJSON(t *settlement.Transaction) (terms, details, timeline []byte, err error) {
	if terms, err = toJSON(t.Terms); err != nil {
		return
	}
	if details, err = toJSON(t.PaymentDetails); err != nil {
		return
	}
	timeline, err = toJSON(t.Timeline)
	return
}

func scanTransaction(row pgx.Row) (*settlement.Transaction, error) {
	var t settlement.Transaction
	var terms, details, timeline []byte
	err := row.Scan(
		&t.ID,
		&t.ListingID,
		&t.ProposalID,
		&t.TitleID,
		&t.BuyerID,
		&t.SellerID,
		&t.Value,
		&t.FaceValue,
		&terms,
		&t.PaymentMethod,
		&details,
		&t.PaymentReference,
		&t.PaymentProof,
		&t.Status,
		&t.ComplianceHold,
		&t.ComplianceReason,
		&t.ComplianceReport,
		&t.HoldClearedBy,
		&t.HoldClearedAt,
		&t.PlatformFee,
		&timeline,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(terms, &t.Terms); err != nil {
		return nil, err
	}
	if err := fromJSON(details, &t.PaymentDetails); err != nil {
		return nil, err
	}
	if err := fromJSON(timeline, &t.Timeline); err != nil {
		return nil, err
	}
	return &t, nil
}
