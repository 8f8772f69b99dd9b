package handler

import (
	"context"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler handles HTTP requests for payment and settlement
type TransactionHandler struct {
	settlementService service.SettlementService
	logger            *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, settlementService service.SettlementService) *TransactionHandler {
	return &TransactionHandler{
		settlementService: settlementService,
		logger:            logger,
	}
}

// GetByID retrieves a transaction with its timeline
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	tx, err := h.settlementService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to get transaction")
		return
	}
	RespondOK(c, tx)
}

// RequestPayment starts the buyer's payment
func (h *TransactionHandler) RequestPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	var req RequestPaymentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := h.settlementService.RequestPayment(requestContext(c), id, actor, shared.PaymentMethod(req.Method), req.Details)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to request payment")
		return
	}
	RespondOK(c, tx)
}

// ConfirmPayment records the buyer's proof and checks it with the gateway
func (h *TransactionHandler) ConfirmPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := h.settlementService.ConfirmPayment(requestContext(c), id, actor, req.Proof)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to confirm payment")
		return
	}
	RespondOK(c, tx)
}

// ClearHold releases a transaction held for compliance review
func (h *TransactionHandler) ClearHold(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	var req NoteRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := h.settlementService.ClearComplianceHold(requestContext(c), id, actor, req.Note)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to clear compliance hold")
		return
	}
	RespondOK(c, tx)
}

// Cancel abandons a transaction before settlement
func (h *TransactionHandler) Cancel(c *gin.Context) {
	h.withReason(c, h.settlementService.CancelTransaction, "Failed to cancel transaction")
}

// Dispute opens a dispute on a transaction
func (h *TransactionHandler) Dispute(c *gin.Context) {
	h.withReason(c, h.settlementService.OpenDispute, "Failed to open dispute")
}

func (h *TransactionHandler) withReason(c *gin.Context, op func(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error), msg string) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := op(requestContext(c), id, actor, req.Reason)
	if err != nil {
		respondServiceError(c, h.logger, err, msg)
		return
	}
	RespondOK(c, tx)
}

// Resolve applies the administrative decision on a dispute
func (h *TransactionHandler) Resolve(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	var req ResolveDisputeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := h.settlementService.ResolveDispute(requestContext(c), id, actor, settlement.DisputeOutcome(req.Outcome), req.Note)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to resolve dispute")
		return
	}
	RespondOK(c, tx)
}

// Settle moves the funds and transfers the title
func (h *TransactionHandler) Settle(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "transaction")
	if !ok {
		return
	}
	tx, err := h.settlementService.Settle(requestContext(c), id, actor)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to settle transaction")
		return
	}
	RespondOK(c, tx)
}
