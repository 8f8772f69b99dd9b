package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingRowColumns = []string{"id", "title_id", "seller_id", "title_type", "category", "original_value", "minimum_value",
	"suggested_value", "modality", "status", "sectors", "regions", "expires_at", "proposal_ttl_seconds", "finalized_at",
	"version", "created_at", "updated_at"}

func sampleListing() *listing.Listing {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &listing.Listing{
		ID:           uuid.New(),
		TitleID:      uuid.New(),
		SellerID:     uuid.New(),
		TitleType:    title.TypeCreditoTributario,
		Category:     title.CategoryTributario,
		Pricing:      listing.Pricing{OriginalValue: 50000, MinimumValue: 40000, SuggestedValue: 45000},
		Modality:     listing.ModalityDirectSale,
		Status:       listing.StatusActive,
		Restrictions: listing.Restrictions{Sectors: []string{"agro"}},
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
		ProposalTTL:  48 * time.Hour,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func listingRow(l *listing.Listing) *pgxmock.Rows {
	return pgxmock.NewRows(listingRowColumns).AddRow(l.ID, l.TitleID, l.SellerID, l.TitleType, l.Category,
		l.Pricing.OriginalValue, l.Pricing.MinimumValue, l.Pricing.SuggestedValue, l.Modality, l.Status,
		nonNil(l.Restrictions.Sectors), nonNil(l.Restrictions.Regions), l.ExpiresAt, int64(l.ProposalTTL/time.Second),
		l.FinalizedAt, l.Version, l.CreatedAt, l.UpdatedAt)
}

func TestListingRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ListingRepository{querier: mock, logger: newTestLogger()}
	l := sampleListing()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO listings")).
		WithArgs(l.ID, l.TitleID, l.SellerID, l.TitleType, l.Category, l.Pricing.OriginalValue, l.Pricing.MinimumValue,
			l.Pricing.SuggestedValue, l.Modality, l.Status, []string{"agro"}, []string{}, l.ExpiresAt, int64(172800),
			l.FinalizedAt, l.Version, l.CreatedAt, l.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(ctx, l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ListingRepository{querier: mock, logger: newTestLogger()}
	l := sampleListing()
	query := regexp.QuoteMeta("FROM listings WHERE id = $1")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(l.ID).WillReturnRows(listingRow(l))

		got, err := repo.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.Pricing, got.Pricing)
		assert.Equal(t, 48*time.Hour, got.ProposalTTL)
		assert.Equal(t, []string{"agro"}, got.Restrictions.Sectors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(l.ID).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, l.ID)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, shared.ErrNotFound{Entity: "listing", ID: l.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListingRepository_FindOpenByTitle(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ListingRepository{querier: mock, logger: newTestLogger()}
	titleID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE title_id = $1 AND status IN ('active', 'paused')")).
		WithArgs(titleID).
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.FindOpenByTitle(ctx, titleID)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListingRepository_Search(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ListingRepository{querier: mock, logger: newTestLogger()}
	l := sampleListing()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	t.Run("builds conditions in order", func(t *testing.T) {
		f := listing.Filter{
			Category: title.CategoryTributario,
			MinPrice: 10000,
			Sector:   "agro",
			Status:   listing.StatusExpired,
		}
		query := `WHERE category = $1 AND suggested_value >= $2 AND (cardinality(sectors) = 0 OR $3 = ANY(sectors))
			AND (status = 'expired' OR (status IN ('active', 'paused') AND expires_at < $4))
			ORDER BY created_at ASC, id LIMIT $5 OFFSET $6`
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs(title.CategoryTributario, int64(10000), "agro", now, 1000, 0).
			WillReturnRows(listingRow(l))

		got, err := repo.Search(ctx, f, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, l.ID, got[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("active excludes lapsed rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND expires_at >= $2 ORDER BY")).
			WithArgs("active", now, 1000, 0).
			WillReturnRows(pgxmock.NewRows(listingRowColumns))

		_, err := repo.Search(ctx, listing.Filter{Status: listing.StatusActive}, now)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("price sort and page run in the database", func(t *testing.T) {
		oldestCheapest := sampleListing()
		oldestCheapest.Pricing = listing.Pricing{OriginalValue: 10000, MinimumValue: 8000, SuggestedValue: 9000}
		oldestCheapest.CreatedAt = now.AddDate(-1, 0, 0)

		mock.ExpectQuery(regexp.QuoteMeta("FROM listings ORDER BY suggested_value ASC, id LIMIT $1 OFFSET $2")).
			WithArgs(20, 40).
			WillReturnRows(listingRow(oldestCheapest))

		got, err := repo.Search(ctx, listing.Filter{SortBy: listing.SortBySuggestedValue, Limit: 20, Offset: 40}, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, oldestCheapest.ID, got[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("descending expiry", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY expires_at DESC, id LIMIT $1 OFFSET $2")).
			WithArgs(1000, 0).
			WillReturnRows(pgxmock.NewRows(listingRowColumns))

		got, err := repo.Search(ctx, listing.Filter{SortBy: listing.SortByExpiry, Desc: true, Limit: 5000}, now)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown sort never reaches SQL", func(t *testing.T) {
		_, err := repo.Search(ctx, listing.Filter{SortBy: "id; DROP TABLE listings"}, now)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListingRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &ListingRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("UPDATE listings SET status = $1, finalized_at = $2, updated_at = $3, version = version + 1 WHERE id = $4 AND version = $5")

	t.Run("success", func(t *testing.T) {
		l := sampleListing()
		l.Status = listing.StatusFinalized
		mock.ExpectExec(query).
			WithArgs(l.Status, l.FinalizedAt, l.UpdatedAt, l.ID, 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(ctx, l))
		assert.Equal(t, 2, l.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		l := sampleListing()
		mock.ExpectExec(query).
			WithArgs(l.Status, l.FinalizedAt, l.UpdatedAt, l.ID, 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, l)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification{Entity: "listing", ID: l.ID})
		assert.Equal(t, 1, l.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
