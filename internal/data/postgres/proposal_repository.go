package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const proposalEntity = "proposal"

const proposalColumns = `id, listing_id, buyer_id, value, terms, message, documents, status, expires_at,
		decided_at, decision_reason, version, created_at, updated_at`

// ProposalRepository implements the proposal.Repository interface for PostgreSQL
type ProposalRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewProposalRepository creates a new PostgreSQL proposal repository
func NewProposalRepository(logger *slog.Logger, db *persistence.PostgresDB) proposal.Repository {
	return &ProposalRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *ProposalRepository) WithTx(tx pgx.Tx) proposal.Repository {
	return &ProposalRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new proposal
func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	terms, err := toJSON(p.Terms)
	if err != nil {
		return err
	}

	_, err = r.querier.Exec(ctx, query,
		p.ID,
		p.ListingID,
		p.BuyerID,
		p.Value,
		terms,
		p.Message,
		nonNil(p.Documents),
		p.Status,
		p.ExpiresAt,
		p.DecidedAt,
		p.DecisionReason,
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create proposal", "id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to create proposal: %w", err)
	}

	return nil
}

// GetByID retrieves a proposal by its ID
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`

	p, err := scanProposal(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: proposalEntity, ID: id}
		}
		r.logger.Error("Failed to get proposal", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	return p, nil
}

func (r *ProposalRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`

	p, err := scanProposal(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: proposalEntity, ID: id}
		}
		r.logger.Error("Failed to lock proposal for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock proposal for update: %w", err)
	}

	return p, nil
}

// ListByListing returns every proposal on a listing in submission order
func (r *ProposalRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE listing_id = $1 ORDER BY created_at ASC, id`
	return r.list(ctx, "list proposals by listing", query, listingID)
}

// ListByBuyer returns a buyer's proposals, newest first
func (r *ProposalRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE buyer_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, "list proposals by buyer", query, buyerID)
}

// LockPendingByListing locks the pending siblings of an accepted proposal.
// Rows are locked in id order so concurrent acceptances cannot deadlock.
func (r *ProposalRepository) LockPendingByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		WHERE listing_id = $1 AND status = $2
		ORDER BY id
		FOR UPDATE`
	return r.list(ctx, "lock pending proposals", query, listingID, proposal.StatusPending)
}

func (r *ProposalRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC, id
		LIMIT $3`
	return r.list(ctx, "list expirable proposals", query, proposal.StatusPending, now, limit)
}

// Update persists the proposal using optimistic locking on version
func (r *ProposalRepository) Update(ctx context.Context, p *proposal.Proposal) error {
	query := `
		UPDATE proposals
		SET value = $1, terms = $2, message = $3, status = $4, decided_at = $5, decision_reason = $6,
			updated_at = $7, version = version + 1
		WHERE id = $8 AND version = $9
	`

	terms, err := toJSON(p.Terms)
	if err != nil {
		return err
	}

	result, err := r.querier.Exec(ctx, query,
		p.Value,
		terms,
		p.Message,
		p.Status,
		p.DecidedAt,
		p.DecisionReason,
		p.UpdatedAt,
		p.ID,
		p.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update proposal", "id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to update proposal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrentModification{Entity: proposalEntity, ID: p.ID}
	}

	p.Version++
	return nil
}

func (r *ProposalRepository) list(ctx context.Context, op, query string, args ...any) ([]*proposal.Proposal, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	proposals := []*proposal.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			r.logger.Error("Failed to scan proposal", "error", err)
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over proposals", "error", err)
		return nil, fmt.Errorf("error iterating over proposals: %w", err)
	}
	return proposals, nil
}

func scanProposal(row pgx.Row) (*proposal.Proposal, error) {
	var p proposal.Proposal
	var terms []byte
	err := row.Scan(
		&p.ID,
		&p.ListingID,
		&p.BuyerID,
		&p.Value,
		&terms,
		&p.Message,
		&p.Documents,
		&p.Status,
		&p.ExpiresAt,
		&p.DecidedAt,
		&p.DecisionReason,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(terms, &p.Terms); err != nil {
		return nil, err
	}
	return &p, nil
}
