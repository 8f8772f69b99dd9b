package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/credit-title-marketplace/internal/api_gateway/handler"
	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/marketplace/components"
	"github.com/credit-title-marketplace/internal/platform/messaging/producers"
	"github.com/gin-gonic/gin"
)

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger // For structured logging
	httpServer *http.Server // Underlying HTTP server
	httpRouter *gin.Engine  // Gin router instance
}

// NewServer creates and configures a new HTTP server over the marketplace engines.
// callbacks receives payment gateway webhooks for the settlement worker.
func NewServer(log *slog.Logger, cfg *config.Config, svcs *components.Services, callbacks producers.MessagePublisher) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, handlers{
		titles:       handler.NewTitleHandler(log, svcs.Titles, svcs.Events, cfg.Marketplace.ValidationTimeout),
		listings:     handler.NewListingHandler(log, svcs.Listings, svcs.Proposals),
		proposals:    handler.NewProposalHandler(log, svcs.Proposals),
		transactions: handler.NewTransactionHandler(log, svcs.Settlements),
		accounts:     handler.NewAccountHandler(log, svcs.Wallets),
		portfolio:    handler.NewPortfolioHandler(log, svcs.Portfolio),
		webhooks:     handler.NewWebhookHandler(log, callbacks),
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server within timeout
func (s *Server) Stop(ctx context.Context, timeout time.Duration) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
