package title

import (
	"errors"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestTitle(t *testing.T) *Title {
	t.Helper()
	tt, err := New(NewTitleParams{
		Number:        "TC-2026-000001",
		Type:          TypeCreditoTributario,
		Category:      CategoryTributario,
		OriginalValue: 50000,
		IssueDate:     testNow.AddDate(-1, 0, 0),
		MaturityDate:  testNow.AddDate(2, 0, 0),
		OwnerID:       uuid.New(),
		IssuerName:    "Receita Federal",
		Debtor:        "Uniao",
		Documents:     []Document{{Name: "certidao.pdf", Kind: "certidao", URL: "s3://docs/certidao.pdf"}},
	}, testNow)
	require.NoError(t, err)
	return tt
}

func validatedTitle(t *testing.T) *Title {
	t.Helper()
	tt := newTestTitle(t)
	require.NoError(t, tt.SubmitForValidation(tt.OwnerID, testNow))
	require.NoError(t, tt.ApplyValidation(ValidationOutcome{Approved: true, Confidence: 0.93, Justification: "ok"}, nil, testNow))
	return tt
}

func TestNew(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		tt := newTestTitle(t)

		assert.NotEqual(t, uuid.Nil, tt.ID)
		assert.Equal(t, StatusDraft, tt.Status)
		assert.Equal(t, int64(50000), tt.AvailableValue)
		assert.Equal(t, 1, tt.Version)
		require.Len(t, tt.Documents, 1)
		assert.Equal(t, DocumentPending, tt.Documents[0].Status)
		assert.NotEqual(t, uuid.Nil, tt.Documents[0].ID)
		require.Len(t, tt.History, 1)
		assert.Equal(t, "created", tt.History[0].Kind)
	})

	t.Run("RejectsIssueAfterMaturity", func(t *testing.T) {
		_, err := New(NewTitleParams{
			Type:          TypeOutro,
			Category:      CategoryEspecial,
			OriginalValue: 100,
			IssueDate:     testNow,
			MaturityDate:  testNow,
			OwnerID:       uuid.New(),
			IssuerName:    "x",
		}, testNow)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("RejectsUnknownType", func(t *testing.T) {
		_, err := New(NewTitleParams{Type: "bond", Category: CategoryEspecial}, testNow)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestTitle_IllegalTransitionsFail(t *testing.T) {
	tt := newTestTitle(t)

	err := tt.BeginTokenization(tt.OwnerID, testNow)
	assert.True(t, errors.Is(err, shared.ErrInvalidStateTransition))
	assert.Equal(t, StatusDraft, tt.Status)

	err = tt.MarkListed(uuid.New(), tt.OwnerID, testNow)
	assert.True(t, errors.Is(err, shared.ErrTitleNotEligible))

	historyLen := len(tt.History)
	err = tt.ApplyValidation(ValidationOutcome{Approved: true}, nil, testNow)
	assert.True(t, errors.Is(err, shared.ErrInvalidStateTransition))
	assert.Len(t, tt.History, historyLen, "failed transitions must not append history")
}

func TestTitle_ApplyValidation(t *testing.T) {
	t.Run("ApprovedRecordsDocuments", func(t *testing.T) {
		tt := newTestTitle(t)
		extra, err := tt.AttachDocument(Document{Name: "procuracao.pdf"}, tt.OwnerID, testNow)
		require.NoError(t, err)
		require.NoError(t, tt.SubmitForValidation(tt.OwnerID, testNow))

		verdicts := []DocumentVerdict{{DocumentID: extra.ID, Approved: false, Note: "illegible"}}
		require.NoError(t, tt.ApplyValidation(ValidationOutcome{Approved: true, Confidence: 0.81, Justification: "main document valid"}, verdicts, testNow))

		assert.Equal(t, StatusValidated, tt.Status)
		require.NotNil(t, tt.Validation)
		assert.Equal(t, 0.81, tt.Validation.Confidence)
		assert.Equal(t, DocumentApproved, tt.Documents[0].Status)
		assert.Equal(t, DocumentRejected, tt.Documents[1].Status)
		assert.Equal(t, "illegible", tt.Documents[1].Note)

		last := tt.History[len(tt.History)-1]
		assert.Equal(t, "0.8100", last.Details["confidence"])
		assert.Equal(t, "main document valid", last.Details["justification"])
	})

	t.Run("Rejected", func(t *testing.T) {
		tt := newTestTitle(t)
		require.NoError(t, tt.SubmitForValidation(tt.OwnerID, testNow))
		require.NoError(t, tt.ApplyValidation(ValidationOutcome{Approved: false, Confidence: 0.2}, nil, testNow))
		assert.Equal(t, StatusRejected, tt.Status)
		assert.Equal(t, DocumentRejected, tt.Documents[0].Status)
	})

	t.Run("SubmitRequiresDocuments", func(t *testing.T) {
		tt := newTestTitle(t)
		tt.Documents = nil
		assert.True(t, errors.Is(tt.SubmitForValidation(tt.OwnerID, testNow), shared.ErrInvalidInput))
	})
}

func TestTitle_Tokenization(t *testing.T) {
	tt := validatedTitle(t)
	require.NoError(t, tt.BeginTokenization(tt.OwnerID, testNow))
	require.NoError(t, tt.FailTokenization("rpc unavailable", testNow))
	assert.Equal(t, StatusValidated, tt.Status)

	require.NoError(t, tt.BeginTokenization(tt.OwnerID, testNow))
	require.NoError(t, tt.CompleteTokenization(TokenRecord{TokenID: "tok-1", ContractRef: "c", TxHash: "h"}, testNow))
	assert.Equal(t, StatusTokenized, tt.Status)
	require.NotNil(t, tt.Token)
	assert.Equal(t, testNow, tt.Token.MintedAt)

	require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
	require.NoError(t, tt.ReturnToEligible(shared.SystemActor, "listing expired", testNow))
	assert.Equal(t, StatusTokenized, tt.Status, "tokenized titles return to tokenized")
}

func TestTitle_ApplySale(t *testing.T) {
	t.Run("FullSaleMovesOwnership", func(t *testing.T) {
		tt := validatedTitle(t)
		require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
		buyer := uuid.New()

		require.NoError(t, tt.ApplySale(50000, buyer, false, uuid.New(), testNow))
		assert.Equal(t, StatusSold, tt.Status)
		assert.Equal(t, int64(0), tt.AvailableValue)
		assert.Equal(t, buyer, tt.OwnerID)
		require.NotNil(t, tt.ClosedAt)
		assert.NoError(t, tt.CheckInvariants())
	})

	t.Run("FullCompensation", func(t *testing.T) {
		tt := validatedTitle(t)
		require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
		require.NoError(t, tt.ApplySale(50000, uuid.New(), true, uuid.New(), testNow))
		assert.Equal(t, StatusCompensated, tt.Status)
	})

	t.Run("PartialSaleReturnsToEligible", func(t *testing.T) {
		tt := validatedTitle(t)
		owner := tt.OwnerID
		require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
		require.NoError(t, tt.ApplySale(20000, uuid.New(), false, uuid.New(), testNow))
		assert.Equal(t, StatusValidated, tt.Status)
		assert.Equal(t, int64(30000), tt.AvailableValue)
		assert.Equal(t, owner, tt.OwnerID)
		assert.Nil(t, tt.ClosedAt)
	})

	t.Run("RejectsValueAboveAvailable", func(t *testing.T) {
		tt := validatedTitle(t)
		require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
		err := tt.ApplySale(50001, uuid.New(), false, uuid.New(), testNow)
		assert.True(t, errors.Is(err, shared.ErrInvalidAmount))
		assert.Equal(t, int64(50000), tt.AvailableValue)
	})
}

func TestTitle_CancelAndReverse(t *testing.T) {
	t.Run("CancelNonTerminal", func(t *testing.T) {
		tt := validatedTitle(t)
		require.NoError(t, tt.Cancel(tt.OwnerID, "withdrawn", testNow))
		assert.Equal(t, StatusCancelled, tt.Status)
		assert.True(t, errors.Is(tt.Cancel(tt.OwnerID, "again", testNow), shared.ErrInvalidStateTransition))
	})

	t.Run("ReverseWithinWindow", func(t *testing.T) {
		tt := validatedTitle(t)
		require.NoError(t, tt.MarkListed(uuid.New(), tt.OwnerID, testNow))
		require.NoError(t, tt.ApplySale(50000, uuid.New(), false, uuid.New(), testNow))

		err := tt.Reverse(uuid.New(), "fraud", 24*time.Hour, testNow.Add(25*time.Hour))
		assert.True(t, errors.Is(err, shared.ErrReversalWindowClosed))
		assert.Equal(t, StatusSold, tt.Status)

		require.NoError(t, tt.Reverse(uuid.New(), "fraud", 24*time.Hour, testNow.Add(time.Hour)))
		assert.Equal(t, StatusCancelled, tt.Status)
	})

	t.Run("ReverseRequiresClosedTitle", func(t *testing.T) {
		tt := validatedTitle(t)
		err := tt.Reverse(uuid.New(), "x", time.Hour, testNow)
		assert.True(t, errors.Is(err, shared.ErrInvalidStateTransition))
	})
}

func TestTitle_ExpireIfMatured(t *testing.T) {
	tt := validatedTitle(t)
	assert.False(t, tt.ExpireIfMatured(testNow))
	assert.True(t, tt.ExpireIfMatured(tt.MaturityDate.Add(time.Second)))
	assert.Equal(t, StatusExpired, tt.Status)
	assert.False(t, tt.ExpireIfMatured(tt.MaturityDate.Add(time.Hour)), "already expired")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusValidating))
	assert.True(t, CanTransition(StatusListed, StatusSold))
	assert.False(t, CanTransition(StatusSold, StatusListed))
	assert.False(t, CanTransition(StatusRejected, StatusValidated))
	assert.False(t, CanTransition(StatusCancelled, StatusCancelled))
}
