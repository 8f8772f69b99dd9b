package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/credit-title-marketplace/internal/domain/shared"
)

// retryPolicy retries collaborator calls with exponential backoff
type retryPolicy struct {
	maxRetries int
	backoff    time.Duration
}

func (p retryPolicy) schedule(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if p.backoff > 0 {
		b.InitialInterval = p.backoff
	}
	b.MaxElapsedTime = 0

	retries := p.maxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// do calls fn until it succeeds, the retries are exhausted or ctx is done.
// Exhaustion wraps ErrCollaboratorUnavailable, a passed deadline ErrCollaboratorTimeout.
func (p retryPolicy) do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++
		lastErr = fn(ctx)
		return lastErr
	}, p.schedule(ctx), func(err error, delay time.Duration) {
		logger.Warn("Retrying collaborator call",
			"operation", op,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return p.contextError(ctx, op, lastErr)
	}

	logger.Error("Collaborator call failed after retries", "operation", op, "attempts", attempt, "error", lastErr)
	return fmt.Errorf("%s: %w: %v", op, shared.ErrCollaboratorUnavailable, lastErr)
}

func (p retryPolicy) contextError(ctx context.Context, op string, lastErr error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, shared.ErrCollaboratorTimeout)
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ctx.Err(), lastErr))
}
