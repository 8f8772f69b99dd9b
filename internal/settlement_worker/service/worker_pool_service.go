package service

import (
	"context"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolCallbackProcessor bounds how many callbacks are applied at once
type WorkerPoolCallbackProcessor struct {
	base   CallbackProcessor
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolCallbackProcessor(
	base CallbackProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolCallbackProcessor, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolCallbackProcessor{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// ProcessCallback runs the callback on a pool worker and waits for its result
func (s *WorkerPoolCallbackProcessor) ProcessCallback(ctx context.Context, cb *shared.PaymentCallback) error {
	logger := s.logger
	if cb.CorrelationID != "" {
		logger = s.logger.With("correlation_id", cb.CorrelationID)
	}
	logger.Debug("Submitting payment callback to worker pool", "payment_ref", cb.PaymentRef)

	resultChan := make(chan error, 1)
	cbCopy := *cb

	err := s.pool.Submit(func() {
		resultChan <- s.base.ProcessCallback(ctx, &cbCopy)
	})
	if err != nil {
		logger.Error("Failed to submit payment callback to worker pool",
			"payment_ref", cb.PaymentRef,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool
func (s *WorkerPoolCallbackProcessor) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolCallbackProcessor) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolCallbackProcessor) Capacity() int {
	return s.pool.Cap()
}
