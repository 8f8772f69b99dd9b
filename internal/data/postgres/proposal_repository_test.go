package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var proposalRowColumns = []string{"id", "listing_id", "buyer_id", "value", "terms", "message", "documents", "status",
	"expires_at", "decided_at", "decision_reason", "version", "created_at", "updated_at"}

func proposalRow(t *testing.T, rows *pgxmock.Rows, p *proposal.Proposal) *pgxmock.Rows {
	t.Helper()
	terms, err := toJSON(p.Terms)
	require.NoError(t, err)
	return rows.AddRow(p.ID, p.ListingID, p.BuyerID, p.Value, terms, p.Message, nonNil(p.Documents), p.Status,
		p.ExpiresAt, p.DecidedAt, p.DecisionReason, p.Version, p.CreatedAt, p.UpdatedAt)
}

func sampleProposal(listingID uuid.UUID) *proposal.Proposal {
	now := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	return &proposal.Proposal{
		ID:        uuid.New(),
		ListingID: listingID,
		BuyerID:   uuid.New(),
		Value:     47000,
		Terms:     proposal.Terms{Installments: 1, Guarantees: []string{"aval"}, Purpose: proposal.PurposeAcquisition},
		Status:    proposal.StatusPending,
		ExpiresAt: now.Add(72 * time.Hour),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestProposalRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ProposalRepository{querier: mock, logger: newTestLogger()}
	p := sampleProposal(uuid.New())
	query := regexp.QuoteMeta("FROM proposals WHERE id = $1")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(p.ID).WillReturnRows(proposalRow(t, pgxmock.NewRows(proposalRowColumns), p))

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Terms, got.Terms)
		assert.Equal(t, []string{}, got.Documents)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(p.ID).WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound{Entity: "proposal", ID: p.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProposalRepository_LockPendingByListing(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ProposalRepository{querier: mock, logger: newTestLogger()}
	listingID := uuid.New()
	first, second := sampleProposal(listingID), sampleProposal(listingID)

	rows := pgxmock.NewRows(proposalRowColumns)
	proposalRow(t, rows, first)
	proposalRow(t, rows, second)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE listing_id = $1 AND status = $2 ORDER BY id FOR UPDATE")).
		WithArgs(listingID, proposal.StatusPending).
		WillReturnRows(rows)

	got, err := repo.LockPendingByListing(ctx, listingID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProposalRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ProposalRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("UPDATE proposals SET value = $1")

	t.Run("success", func(t *testing.T) {
		p := sampleProposal(uuid.New())
		terms, err := toJSON(p.Terms)
		require.NoError(t, err)
		mock.ExpectExec(query).
			WithArgs(p.Value, terms, p.Message, p.Status, p.DecidedAt, p.DecisionReason, p.UpdatedAt, p.ID, 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(ctx, p))
		assert.Equal(t, 2, p.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		p := sampleProposal(uuid.New())
		mock.ExpectExec(query).
			WithArgs(p.Value, pgxmock.AnyArg(), p.Message, p.Status, p.DecidedAt, p.DecisionReason, p.UpdatedAt, p.ID, 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, p)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification{Entity: "proposal", ID: p.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
