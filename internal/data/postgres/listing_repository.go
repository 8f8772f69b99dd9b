package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const listingEntity = "listing"

// searchMaxLimit caps one page of search results
const searchMaxLimit = 1000

const listingColumns = `id, title_id, seller_id, title_type, category, original_value, minimum_value,
		suggested_value, modality, status, sectors, regions, expires_at, proposal_ttl_seconds,
		finalized_at, version, created_at, updated_at`

// ListingRepository implements the listing.Repository interface for PostgreSQL
type ListingRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewListingRepository creates a new PostgreSQL listing repository
func NewListingRepository(logger *slog.Logger, db *persistence.PostgresDB) listing.Repository {
	return &ListingRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *ListingRepository) WithTx(tx pgx.Tx) listing.Repository {
	return &ListingRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new listing
func (r *ListingRepository) Create(ctx context.Context, l *listing.Listing) error {
	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.querier.Exec(ctx, query,
		l.ID,
		l.TitleID,
		l.SellerID,
		l.TitleType,
		l.Category,
		l.Pricing.OriginalValue,
		l.Pricing.MinimumValue,
		l.Pricing.SuggestedValue,
		l.Modality,
		l.Status,
		nonNil(l.Restrictions.Sectors),
		nonNil(l.Restrictions.Regions),
		l.ExpiresAt,
		int64(l.ProposalTTL/time.Second),
		l.FinalizedAt,
		l.Version,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create listing", "id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// GetByID retrieves a listing by its ID
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: listingEntity, ID: id}
		}
		r.logger.Error("Failed to get listing", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return l, nil
}

// LockForUpdate obtains a row lock on the listing
func (r *ListingRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`

	l, err := scanListing(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: listingEntity, ID: id}
		}
		r.logger.Error("Failed to lock listing for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock listing for update: %w", err)
	}

	return l, nil
}

// FindOpenByTitle returns the active or paused listing of a title, or nil when there is none
func (r *ListingRepository) FindOpenByTitle(ctx context.Context, titleID uuid.UUID) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE title_id = $1 AND status IN ('active', 'paused')
		LIMIT 1`

	l, err := scanListing(r.querier.QueryRow(ctx, query, titleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find open listing", "title_id", titleID.String(), "error", err)
		return nil, fmt.Errorf("failed to find open listing: %w", err)
	}

	return l, nil
}

// ListBySeller returns a seller's listings, newest first
func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, "list listings by seller", query, sellerID)
}

// ListExpirable returns non-terminal listings whose expiry passed
func (r *ListingRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings
		WHERE status IN ('active', 'paused') AND expires_at < $1
		ORDER BY expires_at ASC, id
		LIMIT $2`
	return r.list(ctx, "list expirable listings", query, now, limit)
}

// Search filters, orders and pages in SQL. Lazy expiry is evaluated against now so a
// lapsed listing matches an expired filter before the sweep writes it.
func (r *ListingRepository) Search(ctx context.Context, f listing.Filter, now time.Time) ([]*listing.Listing, error) {
	if !f.SortBy.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown sort field %q", f.SortBy)
	}
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.TitleType != "" {
		add("title_type = $%d", f.TitleType)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Modality != "" {
		add("modality = $%d", f.Modality)
	}
	if f.SellerID != uuid.Nil {
		add("seller_id = $%d", f.SellerID)
	}
	if f.MinPrice > 0 {
		add("suggested_value >= $%d", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("suggested_value <= $%d", f.MaxPrice)
	}
	if f.Sector != "" {
		add("(cardinality(sectors) = 0 OR $%d = ANY(sectors))", f.Sector)
	}
	if f.Region != "" {
		add("(cardinality(regions) = 0 OR $%d = ANY(regions))", f.Region)
	}
	switch f.Status {
	case "":
	case listing.StatusActive, listing.StatusPaused:
		args = append(args, string(f.Status), now)
		conds = append(conds, fmt.Sprintf("status = $%d AND expires_at >= $%d", len(args)-1, len(args)))
	case listing.StatusExpired:
		add("(status = 'expired' OR (status IN ('active', 'paused') AND expires_at < $%d))", now)
	default:
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}
	limit := f.Limit
	if limit <= 0 || limit > searchMaxLimit {
		limit = searchMaxLimit
	}
	args = append(args, limit, max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY %s %s, id LIMIT $%d OFFSET $%d`, f.SortBy.Column(), direction, len(args)-1, len(args))

	return r.list(ctx, "search listings", query, args...)
}

// Update persists the listing using optimistic locking on version
func (r *ListingRepository) Update(ctx context.Context, l *listing.Listing) error {
	query := `
		UPDATE listings
		SET status = $1, finalized_at = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`

	result, err := r.querier.Exec(ctx, query, l.Status, l.FinalizedAt, l.UpdatedAt, l.ID, l.Version)
	if err != nil {
		r.logger.Error("Failed to update listing", "id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to update listing: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrentModification{Entity: listingEntity, ID: l.ID}
	}

	l.Version++
	return nil
}

func (r *ListingRepository) list(ctx context.Context, op, query string, args ...any) ([]*listing.Listing, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	listings := []*listing.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			r.logger.Error("Failed to scan listing", "error", err)
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over listings", "error", err)
		return nil, fmt.Errorf("error iterating over listings: %w", err)
	}
	return listings, nil
}

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var l listing.Listing
	var ttlSeconds int64
	err := row.Scan(
		&l.ID,
		&l.TitleID,
		&l.SellerID,
		&l.TitleType,
		&l.Category,
		&l.Pricing.OriginalValue,
		&l.Pricing.MinimumValue,
		&l.Pricing.SuggestedValue,
		&l.Modality,
		&l.Status,
		&l.Restrictions.Sectors,
		&l.Restrictions.Regions,
		&l.ExpiresAt,
		&ttlSeconds,
		&l.FinalizedAt,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ProposalTTL = time.Duration(ttlSeconds) * time.Second
	return &l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
