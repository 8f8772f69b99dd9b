package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftTitle(t *testing.T) *title.Title {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tt, err := title.New(title.NewTitleParams{
		Number:        "TC-2026-000001",
		Type:          title.TypePrecatorio,
		Category:      title.CategoryJudicial,
		OriginalValue: 50000,
		IssueDate:     now.AddDate(-1, 0, 0),
		MaturityDate:  now.AddDate(2, 0, 0),
		OwnerID:       uuid.New(),
		IssuerName:    "TJSP",
		Debtor:        "Estado de Sao Paulo",
		Documents:     []title.Document{{Name: "oficio.pdf", Kind: "oficio", URL: "s3://docs/oficio.pdf"}},
	}, now)
	require.NoError(t, err)
	return tt
}

func TestTitleRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TitleRepository{querier: mock, logger: newTestLogger()}
	tt := newDraftTitle(t)
	docs, history, validation, token, err := encodeTitleJSON(tt)
	require.NoError(t, err)
	assert.Nil(t, validation, "missing validation is stored as NULL")
	assert.Nil(t, token)

	query := regexp.QuoteMeta("INSERT INTO credit_titles")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(tt.ID, tt.Number, tt.Type, tt.Category, tt.OriginalValue, tt.AvailableValue, tt.IssueDate, tt.MaturityDate,
				tt.Status, tt.OwnerID, tt.IssuerName, tt.Debtor, docs, history, validation, token, tt.ClosedAt,
				tt.Version, tt.CreatedAt, tt.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, tt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("db error")
		mock.ExpectExec(query).WithArgs(anyArgs(20)...).WillReturnError(dbErr)

		err := repo.Create(ctx, tt)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to create credit title")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTitleRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TitleRepository{querier: mock, logger: newTestLogger()}
	tt := newDraftTitle(t)
	tt.Status = title.StatusTokenized
	tt.Validation = &title.ValidationOutcome{Approved: true, Confidence: 0.93, Justification: "documents match", At: tt.CreatedAt}
	tt.Token = &title.TokenRecord{TokenID: "tok-1", ContractRef: "contract-1", TxHash: "0xabc", MintedAt: tt.CreatedAt}
	docs, history, validation, token, err := encodeTitleJSON(tt)
	require.NoError(t, err)

	query := regexp.QuoteMeta("FROM credit_titles WHERE id = $1")
	columns := []string{"id", "number", "type", "category", "original_value", "available_value", "issue_date",
		"maturity_date", "status", "owner_id", "issuer_name", "debtor", "documents", "history", "validation", "token",
		"closed_at", "version", "created_at", "updated_at"}

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(columns).AddRow(tt.ID, tt.Number, tt.Type, tt.Category, tt.OriginalValue, tt.AvailableValue,
			tt.IssueDate, tt.MaturityDate, tt.Status, tt.OwnerID, tt.IssuerName, tt.Debtor, docs, history, validation, token,
			(*time.Time)(nil), tt.Version, tt.CreatedAt, tt.UpdatedAt)
		mock.ExpectQuery(query).WithArgs(tt.ID).WillReturnRows(rows)

		got, err := repo.GetByID(ctx, tt.ID)
		require.NoError(t, err)
		assert.Equal(t, tt.Number, got.Number)
		assert.Equal(t, title.StatusTokenized, got.Status)
		require.Len(t, got.Documents, 1)
		assert.Equal(t, tt.Documents[0].ID, got.Documents[0].ID)
		require.Len(t, got.History, 1)
		assert.Equal(t, "created", got.History[0].Kind)
		require.NotNil(t, got.Validation)
		assert.InDelta(t, 0.93, got.Validation.Confidence, 1e-9)
		require.NotNil(t, got.Token)
		assert.Equal(t, "tok-1", got.Token.TokenID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(tt.ID).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, tt.ID)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, shared.ErrNotFound{Entity: "credit_title", ID: tt.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTitleRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TitleRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta("UPDATE credit_titles SET available_value = $1")

	t.Run("success bumps version", func(t *testing.T) {
		tt := newDraftTitle(t)
		mock.ExpectExec(query).WithArgs(
			tt.AvailableValue, tt.Status, tt.OwnerID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			tt.ClosedAt, tt.UpdatedAt, tt.ID, 1,
		).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Update(ctx, tt))
		assert.Equal(t, 2, tt.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		tt := newDraftTitle(t)
		mock.ExpectExec(query).WithArgs(
			tt.AvailableValue, tt.Status, tt.OwnerID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			tt.ClosedAt, tt.UpdatedAt, tt.ID, 1,
		).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, tt)
		assert.ErrorIs(t, err, shared.ErrConcurrentModification{Entity: "credit_title", ID: tt.ID})
		assert.Equal(t, 1, tt.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTitleRepository_NextNumber(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TitleRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nextval('credit_title_number_seq')")).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(123)))

	number, err := repo.NextNumber(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, "TC-2026-000123", number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTitleRepository_ListMaturedValidated(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TitleRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	dbErr := errors.New("statement timeout")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND maturity_date < $2")).
		WithArgs(title.StatusValidated, now, 50).
		WillReturnError(dbErr)

	titles, err := repo.ListMaturedValidated(ctx, now, 50)
	assert.Nil(t, titles)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "failed to list matured credit titles")
	assert.NoError(t, mock.ExpectationsWereMet())
}
