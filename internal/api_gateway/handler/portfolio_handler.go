package handler

import (
	"log/slog"

	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
)

// PortfolioHandler serves the per-party portfolio view
type PortfolioHandler struct {
	portfolioService service.PortfolioService
	logger           *slog.Logger
}

func NewPortfolioHandler(logger *slog.Logger, portfolioService service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService, logger: logger}
}

// Get returns everything ownerId holds on the marketplace
func (h *PortfolioHandler) Get(c *gin.Context) {
	ownerID, ok := pathID(c, h.logger, "ownerId", "owner")
	if !ok {
		return
	}
	p, err := h.portfolioService.GetPortfolio(c.Request.Context(), ownerID)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to build portfolio")
		return
	}
	RespondOK(c, p)
}
