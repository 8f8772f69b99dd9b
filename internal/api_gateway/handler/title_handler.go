package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
)

// TitleHandler handles HTTP requests for the credit title registry
type TitleHandler struct {
	titleService      service.TitleService
	eventService      service.EventService
	validationTimeout time.Duration
	logger            *slog.Logger
}

// NewTitleHandler creates a new title handler
func NewTitleHandler(logger *slog.Logger, titleService service.TitleService, eventService service.EventService, validationTimeout time.Duration) *TitleHandler {
	return &TitleHandler{
		titleService:      titleService,
		eventService:      eventService,
		validationTimeout: validationTimeout,
		logger:            logger,
	}
}

// Register records a new draft title owned by the actor
func (h *TitleHandler) Register(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req RegisterTitleRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	docs := make([]title.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, title.Document{Name: d.Name, Kind: d.Kind, URL: d.URL})
	}

	t, err := h.titleService.RegisterTitle(requestContext(c), title.NewTitleParams{
		Number:        req.Number,
		Type:          title.Type(req.Type),
		Category:      title.Category(req.Category),
		OriginalValue: req.OriginalValue,
		IssueDate:     req.IssueDate,
		MaturityDate:  req.MaturityDate,
		OwnerID:       actor,
		IssuerName:    req.IssuerName,
		Debtor:        req.Debtor,
		Documents:     docs,
	})
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to register title")
		return
	}
	RespondCreated(c, t)
}

// GetByID retrieves a title with its documents and history
func (h *TitleHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	t, err := h.titleService.GetTitle(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to get title")
		return
	}
	RespondOK(c, t)
}

// AttachDocument adds a supporting document to a draft title
func (h *TitleHandler) AttachDocument(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	var req DocumentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	t, err := h.titleService.AttachDocument(requestContext(c), id, actor, title.Document{Name: req.Name, Kind: req.Kind, URL: req.URL})
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to attach document")
		return
	}
	RespondOK(c, t)
}

// Submit moves a draft title into validation
func (h *TitleHandler) Submit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	t, err := h.titleService.SubmitForValidation(requestContext(c), id, actor)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to submit title")
		return
	}
	RespondOK(c, t)
}

// Validate asks the validator for a verdict on a submitted title
func (h *TitleHandler) Validate(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	t, err := h.titleService.RunValidation(requestContext(c), id, h.validationTimeout)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to validate title")
		return
	}
	RespondOK(c, t)
}

// Tokenize mints the title
func (h *TitleHandler) Tokenize(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	t, err := h.titleService.Tokenize(requestContext(c), id, actor)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to tokenize title")
		return
	}
	RespondOK(c, t)
}

// Cancel withdraws a title from the marketplace
func (h *TitleHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	t, err := h.titleService.CancelTitle(requestContext(c), id, actor, req.Reason)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to cancel title")
		return
	}
	RespondOK(c, t)
}

// Reverse cancels a closed title inside the administrative reversal window
func (h *TitleHandler) Reverse(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	t, err := h.titleService.ReverseTitle(requestContext(c), id, actor, req.Reason)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to reverse title")
		return
	}
	RespondOK(c, t)
}

// Events returns the paginated audit trail of a title
func (h *TitleHandler) Events(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "title")
	if !ok {
		return
	}
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Warn("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	events, total, err := h.eventService.ListEvents(c.Request.Context(), audit.AggregateTitle, id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to list title events")
		return
	}
	RespondWithPaginatedData(c, http.StatusOK, events, pagination.Page, pagination.PerPage, int(total))
}
