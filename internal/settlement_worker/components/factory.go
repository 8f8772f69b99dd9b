package components

import (
	"log/slog"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/settlement_worker/service"
)

// CreateCallbackProcessor creates the pooled payment callback processor
func CreateCallbackProcessor(
	payments service.PaymentApplier,
	wallets service.WalletConfirmer,
	logger *slog.Logger,
	cfg *config.Config,
) service.CallbackProcessor {
	base := service.NewCallbackService(payments, wallets, cfg.WorkerPool.ReferenceWait, logger.With("component", "callback_service"))

	pooled, err := service.NewWorkerPoolCallbackProcessor(
		base,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool, falling back to direct processing", "error", err)
		return base
	}

	logger.Info("Created worker pool callback processor", "pool_size", cfg.WorkerPool.Size)
	return pooled
}
