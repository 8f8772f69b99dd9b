package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles HTTP requests for wallet operations
type AccountHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, walletService service.WalletService) *AccountHandler {
	return &AccountHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// Create opens the actor's wallet
func (h *AccountHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req OpenAccountRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	acc, err := h.walletService.OpenAccount(requestContext(c), actor, wallet.Kind(req.Kind))
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to open account")
		return
	}
	RespondCreated(c, mapAccountToResponse(acc))
}

// GetByID retrieves an account by its ID, returning 404 if not found
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "account")
	if !ok {
		return
	}
	acc, err := h.walletService.GetAccount(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to get account")
		return
	}
	RespondOK(c, mapAccountToResponse(acc))
}

// Transactions retrieves paginated wallet history for an account
func (h *AccountHandler) Transactions(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "account")
	if !ok {
		return
	}
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Warn("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.walletService.ListTransactions(c.Request.Context(), id, pagination.Page, pagination.PerPage)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to list wallet transactions")
		return
	}

	transactions := make([]WalletTransactionResponse, 0, len(entries))
	for _, e := range entries {
		transactions = append(transactions, mapWalletTransactionToResponse(e))
	}
	RespondWithPaginatedData(c, http.StatusOK, transactions, pagination.Page, pagination.PerPage, int(total))
}

// Deposit asks the gateway to collect funds into the account
func (h *AccountHandler) Deposit(c *gin.Context) {
	h.move(c, h.walletService.Deposit, "Failed to request deposit")
}

// Withdraw reserves funds and asks the gateway to pay them out
func (h *AccountHandler) Withdraw(c *gin.Context) {
	h.move(c, h.walletService.Withdraw, "Failed to request withdrawal")
}

func (h *AccountHandler) move(c *gin.Context, op func(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error), msg string) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "account")
	if !ok {
		return
	}
	var req MoneyMovementRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	wtx, err := op(requestContext(c), id, actor, req.Amount, shared.PaymentMethod(req.Method))
	if err != nil {
		respondServiceError(c, h.logger, err, msg)
		return
	}
	RespondAccepted(c, mapWalletTransactionToResponse(wtx))
}

// mapAccountToResponse maps an account entity to an account response DTO
func mapAccountToResponse(acc *wallet.Account) AccountResponse {
	return AccountResponse{
		ID:        acc.ID.String(),
		OwnerID:   acc.OwnerID.String(),
		Kind:      string(acc.Kind),
		Available: acc.Available,
		Pending:   acc.Pending,
		Total:     acc.Total(),
		Currency:  acc.Currency,
		CreatedAt: acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: acc.UpdatedAt.Format(time.RFC3339),
	}
}

func mapWalletTransactionToResponse(wtx *wallet.Transaction) WalletTransactionResponse {
	response := WalletTransactionResponse{
		ID:             wtx.ID.String(),
		AccountID:      wtx.AccountID.String(),
		Type:           string(wtx.Type),
		Amount:         wtx.Amount,
		Method:         string(wtx.Method),
		Status:         string(wtx.Status),
		ExternalRef:    wtx.ExternalRef,
		CounterpartRef: wtx.CounterpartRef,
		CreatedAt:      wtx.CreatedAt.Format(time.RFC3339),
	}
	if wtx.CompletedAt != nil {
		response.CompletedAt = wtx.CompletedAt.Format(time.RFC3339)
	}
	return response
}
