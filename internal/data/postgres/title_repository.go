// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the marketplace.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const titleEntity = "credit_title"

const titleColumns = `id, number, type, category, original_value, available_value, issue_date, maturity_date,
		status, owner_id, issuer_name, debtor, documents, history, validation, token, closed_at,
		version, created_at, updated_at`

// TitleRepository implements the title.Repository interface for PostgreSQL
type TitleRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTitleRepository creates a new PostgreSQL credit title repository
func NewTitleRepository(logger *slog.Logger, db *persistence.PostgresDB) title.Repository {
	return &TitleRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *TitleRepository) WithTx(tx pgx.Tx) title.Repository {
	return &TitleRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new credit title
func (r *TitleRepository) Create(ctx context.Context, t *title.Title) error {
	query := `
		INSERT INTO credit_titles (` + titleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	docs, history, validation, token, err := encodeTitleJSON(t)
	if err != nil {
		return err
	}

	_, err = r.querier.Exec(ctx, query,
		t.ID,
		t.Number,
		t.Type,
		t.Category,
		t.OriginalValue,
		t.AvailableValue,
		t.IssueDate,
		t.MaturityDate,
		t.Status,
		t.OwnerID,
		t.IssuerName,
		t.Debtor,
		docs,
		history,
		validation,
		token,
		t.ClosedAt,
		t.Version,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create credit title", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create credit title: %w", err)
	}

	return nil
}

// GetByID retrieves a credit title by its ID
func (r *TitleRepository) GetByID(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM credit_titles WHERE id = $1`

	t, err := scanTitle(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: titleEntity, ID: id}
		}
		r.logger.Error("Failed to get credit title", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get credit title: %w", err)
	}

	return t, nil
}

// LockForUpdate obtains a row lock on the title for the surrounding transaction
func (r *TitleRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM credit_titles WHERE id = $1 FOR UPDATE`

	t, err := scanTitle(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound{Entity: titleEntity, ID: id}
		}
		r.logger.Error("Failed to lock credit title for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock credit title for update: %w", err)
	}

	return t, nil
}

// ListByOwner returns every title held by owner, newest first
func (r *TitleRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*title.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM credit_titles WHERE owner_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, "list credit titles by owner", query, ownerID)
}

// ListMaturedValidated returns validated titles whose maturity passed
func (r *TitleRepository) ListMaturedValidated(ctx context.Context, now time.Time, limit int) ([]*title.Title, error) {
	query := `SELECT ` + titleColumns + ` FROM credit_titles
		WHERE status = $1 AND maturity_date < $2
		ORDER BY maturity_date ASC, id
		LIMIT $3`
	return r.list(ctx, "list matured credit titles", query, title.StatusValidated, now, limit)
}

func (r *TitleRepository) list(ctx context.Context, op, query string, args ...any) ([]*title.Title, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	titles := []*title.Title{}
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			r.logger.Error("Failed to scan credit title", "error", err)
			return nil, fmt.Errorf("failed to scan credit title: %w", err)
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over credit titles", "error", err)
		return nil, fmt.Errorf("error iterating over credit titles: %w", err)
	}
	return titles, nil
}

// NextNumber reserves the next sequence value and formats it as TC-<year>-<seq>
func (r *TitleRepository) NextNumber(ctx context.Context, year int) (string, error) {
	var seq int64
	if err := r.querier.QueryRow(ctx, `SELECT nextval('credit_title_number_seq')`).Scan(&seq); err != nil {
		r.logger.Error("Failed to reserve credit title number", "error", err)
		return "", fmt.Errorf("failed to reserve credit title number: %w", err)
	}
	return fmt.Sprintf("TC-%d-%06d", year, seq), nil
}

// Update persists the title using optimistic locking on version
func (r *TitleRepository) Update(ctx context.Context, t *title.Title) error {
	query := `
		UPDATE credit_titles
		SET available_value = $1, status = $2, owner_id = $3, documents = $4, history = $5,
			validation = $6, token = $7, closed_at = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11
	`

	docs, history, validation, token, err := encodeTitleJSON(t)
	if err != nil {
		return err
	}

	result, err := r.querier.Exec(ctx, query,
		t.AvailableValue,
		t.Status,
		t.OwnerID,
		docs,
		history,
		validation,
		token,
		t.ClosedAt,
		t.UpdatedAt,
		t.ID,
		t.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update credit title", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update credit title: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrentModification{Entity: titleEntity, ID: t.ID}
	}

	t.Version++
	return nil
}

func encodeTitleJSON(t *title.Title) (docs, history, validation, token []byte, err error) {
	if docs, err = toJSON(t.Documents); err != nil {
		return
	}
	if history, err = toJSON(t.History); err != nil {
		return
	}
	if validation, err = toJSON(t.Validation); err != nil {
		return
	}
	token, err = toJSON(t.Token)
	return
}

func scanTitle(row pgx.Row) (*title.Title, error) {
	var t title.Title
	var docs, history, validation, token []byte
	err := row.Scan(
		&t.ID,
		&t.Number,
		&t.Type,
		&t.Category,
		&t.OriginalValue,
		&t.AvailableValue,
		&t.IssueDate,
		&t.MaturityDate,
		&t.Status,
		&t.OwnerID,
		&t.IssuerName,
		&t.Debtor,
		&docs,
		&history,
		&validation,
		&token,
		&t.ClosedAt,
		&t.Version,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(docs, &t.Documents); err != nil {
		return nil, err
	}
	if err := fromJSON(history, &t.History); err != nil {
		return nil, err
	}
	if len(validation) > 0 {
		t.Validation = &title.ValidationOutcome{}
		if err := fromJSON(validation, t.Validation); err != nil {
			return nil, err
		}
	}
	if len(token) > 0 {
		t.Token = &title.TokenRecord{}
		if err := fromJSON(token, t.Token); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
