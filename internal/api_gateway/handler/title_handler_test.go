package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func registerBody() RegisterTitleRequest {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return RegisterTitleRequest{
		Type:          string(title.TypePrecatorio),
		Category:      string(title.CategoryJudicial),
		OriginalValue: 500000,
		IssueDate:     now.AddDate(-1, 0, 0),
		MaturityDate:  now.AddDate(1, 0, 0),
		IssuerName:    "TJSP",
		Documents:     []DocumentRequest{{Name: "oficio.pdf", Kind: "oficio", URL: "s3://oficio.pdf"}},
	}
}

func TestTitleHandler_Register(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), time.Second)
		actor := uuid.New()
		body := registerBody()

		created := &title.Title{ID: uuid.New(), Number: "TC-2026-000001", OwnerID: actor, Status: title.StatusDraft}
		titles.On("RegisterTitle", mock.MatchedBy(func(ctx context.Context) bool {
			return service.CorrelationIDFromContext(ctx) == "corr-test"
		}), mock.MatchedBy(func(p title.NewTitleParams) bool {
			return p.OwnerID == actor && p.Type == title.TypePrecatorio && p.OriginalValue == 500000 && len(p.Documents) == 1
		})).Return(created, nil)

		router := setupTestRouter()
		router.POST("/titles", h.Register)
		rr := doRequest(t, router, http.MethodPost, "/titles", actor, body)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var got title.Title
		decodeResponse(t, rr, &got)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "TC-2026-000001", got.Number)
		titles.AssertExpectations(t)
	})

	t.Run("MissingActor", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), time.Second)

		router := setupTestRouter()
		router.POST("/titles", h.Register)
		rr := doRequest(t, router, http.MethodPost, "/titles", uuid.Nil, registerBody())

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		titles.AssertNotCalled(t, "RegisterTitle", mock.Anything, mock.Anything)
	})

	t.Run("InvalidRequestBody", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), time.Second)

		router := setupTestRouter()
		router.POST("/titles", h.Register)
		rr := doRequest(t, router, http.MethodPost, "/titles", uuid.New(), `{"type": "precatorio"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		titles.AssertNotCalled(t, "RegisterTitle", mock.Anything, mock.Anything)
	})

	t.Run("DomainRejects", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), time.Second)
		titles.On("RegisterTitle", mock.Anything, mock.Anything).
			Return(nil, shared.Precondition(shared.ErrInvalidInput, "maturity precedes issue"))

		router := setupTestRouter()
		router.POST("/titles", h.Register)
		rr := doRequest(t, router, http.MethodPost, "/titles", uuid.New(), registerBody())

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		resp := decodeResponse(t, rr, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, shared.ErrInvalidInput.Code, resp.Error.Code)
	})
}

func TestTitleHandler_Validate(t *testing.T) {
	t.Run("UsesConfiguredTimeout", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), 3*time.Second)
		id := uuid.New()
		titles.On("RunValidation", mock.Anything, id, 3*time.Second).
			Return(&title.Title{ID: id, Status: title.StatusValidated}, nil)

		router := setupTestRouter()
		router.POST("/titles/:id/validate", h.Validate)
		rr := doRequest(t, router, http.MethodPost, "/titles/"+id.String()+"/validate", uuid.New(), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		titles.AssertExpectations(t)
	})

	t.Run("ValidatorTimesOut", func(t *testing.T) {
		titles := new(MockTitleService)
		h := NewTitleHandler(testLogger, titles, new(MockEventService), time.Second)
		id := uuid.New()
		titles.On("RunValidation", mock.Anything, id, time.Second).Return(nil, shared.ErrCollaboratorTimeout)

		router := setupTestRouter()
		router.POST("/titles/:id/validate", h.Validate)
		rr := doRequest(t, router, http.MethodPost, "/titles/"+id.String()+"/validate", uuid.New(), nil)

		assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	})
}

func TestTitleHandler_Events(t *testing.T) {
	events := new(MockEventService)
	h := NewTitleHandler(testLogger, new(MockTitleService), events, time.Second)
	id := uuid.New()
	page := []*audit.Event{{EventID: uuid.New(), AggregateType: audit.AggregateTitle, AggregateID: id, Type: "TITLE_REGISTERED"}}
	events.On("ListEvents", mock.Anything, audit.AggregateTitle, id, 2, 5).Return(page, int64(6), nil)

	router := setupTestRouter()
	router.GET("/titles/:id/events", h.Events)
	rr := doRequest(t, router, http.MethodGet, "/titles/"+id.String()+"/events?page=2&per_page=5", uuid.Nil, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeResponse(t, rr, nil)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.Equal(t, 6, resp.Meta.TotalItems)
	assert.False(t, resp.Meta.HasMore, "page 2 of 2 is the last")
	events.AssertExpectations(t)
}
