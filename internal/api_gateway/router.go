package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/credit-title-marketplace/internal/api_gateway/handler"
	"github.com/credit-title-marketplace/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
)

// handlers groups every HTTP handler mounted by the router
type handlers struct {
	titles       *handler.TitleHandler
	listings     *handler.ListingHandler
	proposals    *handler.ProposalHandler
	transactions *handler.TransactionHandler
	accounts     *handler.AccountHandler
	portfolio    *handler.PortfolioHandler
	webhooks     *handler.WebhookHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.ActorID())

	v1 := r.Group("/api/v1")
	{
		titles := v1.Group("/titles")
		{
			titles.POST("", h.titles.Register)
			titles.GET("/:id", h.titles.GetByID)
			titles.POST("/:id/documents", h.titles.AttachDocument)
			titles.POST("/:id/submit", h.titles.Submit)
			titles.POST("/:id/validate", h.titles.Validate)
			titles.POST("/:id/tokenize", h.titles.Tokenize)
			titles.POST("/:id/cancel", h.titles.Cancel)
			titles.POST("/:id/reverse", h.titles.Reverse)
			titles.GET("/:id/events", h.titles.Events)
		}

		listings := v1.Group("/listings")
		{
			listings.POST("", h.listings.Create)
			listings.GET("", h.listings.Search)
			listings.GET("/:id", h.listings.GetByID)
			listings.POST("/:id/pause", h.listings.Pause)
			listings.POST("/:id/resume", h.listings.Resume)
			listings.GET("/:id/proposals", h.listings.Proposals)
			listings.POST("/:id/proposals", h.proposals.Submit)
		}

		proposals := v1.Group("/proposals")
		{
			proposals.PUT("/:id", h.proposals.Revise)
			proposals.POST("/:id/accept", h.proposals.Accept)
			proposals.POST("/:id/reject", h.proposals.Reject)
			proposals.POST("/:id/cancel", h.proposals.Cancel)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:id", h.transactions.GetByID)
			transactions.POST("/:id/payment", h.transactions.RequestPayment)
			transactions.POST("/:id/confirm-payment", h.transactions.ConfirmPayment)
			transactions.POST("/:id/clear-hold", h.transactions.ClearHold)
			transactions.POST("/:id/cancel", h.transactions.Cancel)
			transactions.POST("/:id/dispute", h.transactions.Dispute)
			transactions.POST("/:id/resolve", h.transactions.Resolve)
			transactions.POST("/:id/settle", h.transactions.Settle)
		}

		accounts := v1.Group("/accounts")
		{
			accounts.POST("", h.accounts.Create)
			accounts.GET("/:id", h.accounts.GetByID)
			accounts.GET("/:id/transactions", h.accounts.Transactions)
			accounts.POST("/:id/deposits", h.accounts.Deposit)
			accounts.POST("/:id/withdrawals", h.accounts.Withdraw)
		}

		v1.GET("/portfolio/:ownerId", h.portfolio.Get)
		v1.POST("/webhooks/payments", h.webhooks.PaymentCallback)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
