package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/credit-title-marketplace/internal/domain/shared"
	marketplace "github.com/credit-title-marketplace/internal/marketplace/service"
)

// ErrUnprocessable marks a callback that can never be applied, however often it is retried
var ErrUnprocessable = errors.New("unprocessable payment callback")

// referenceRetryInterval is the first pause before looking an unknown reference up again
const referenceRetryInterval = 100 * time.Millisecond

// CallbackService routes a callback to the engine owning its payment reference
type CallbackService struct {
	payments      PaymentApplier
	wallets       WalletConfirmer
	referenceWait time.Duration
	logger        *slog.Logger
}

// NewCallbackService creates the callback router. A gateway can call back before the
// engine has committed the reference it was handed, so unknown references are looked
// up again for up to referenceWait.
func NewCallbackService(payments PaymentApplier, wallets WalletConfirmer, referenceWait time.Duration, logger *slog.Logger) *CallbackService {
	return &CallbackService{
		payments:      payments,
		wallets:       wallets,
		referenceWait: referenceWait,
		logger:        logger,
	}
}

// ProcessCallback applies cb. References still unknown once the wait is over and
// callbacks the current state rejects are wrapped in ErrUnprocessable; anything else
// is worth retrying.
func (s *CallbackService) ProcessCallback(ctx context.Context, cb *shared.PaymentCallback) error {
	if cb.PaymentRef == "" {
		return fmt.Errorf("%w: payment_ref is required", ErrUnprocessable)
	}
	switch cb.Status {
	case shared.PaymentStatusPending, shared.PaymentStatusConfirmed, shared.PaymentStatusFailed, shared.PaymentStatusCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrUnprocessable, cb.Status)
	}

	logger := s.logger.With("payment_ref", cb.PaymentRef, "kind", string(cb.Kind), "status", string(cb.Status))
	if cb.CorrelationID != "" {
		logger = logger.With("correlation_id", cb.CorrelationID)
		ctx = marketplace.WithCorrelationID(ctx, cb.CorrelationID)
	}

	switch cb.Kind {
	case shared.CallbackTransactionPayment, shared.CallbackDeposit, shared.CallbackWithdrawal:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrUnprocessable, cb.Kind)
	}

	err := s.applyAwaitingReference(ctx, logger, cb)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound{}) || shared.IsPrecondition(err) {
			logger.Warn("Payment callback rejected", "error", err)
			return fmt.Errorf("%w: %w", ErrUnprocessable, err)
		}
		logger.Error("Failed to apply payment callback", "error", err)
		return err
	}

	logger.Info("Applied payment callback")
	return nil
}

// applyAwaitingReference applies cb, retrying while its reference is not found and the
// reference wait has not run out. Every other outcome ends the retries.
func (s *CallbackService) applyAwaitingReference(ctx context.Context, logger *slog.Logger, cb *shared.PaymentCallback) error {
	if s.referenceWait <= 0 {
		return s.apply(ctx, cb)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(referenceRetryInterval, s.referenceWait)
	b.MaxElapsedTime = s.referenceWait

	return backoff.RetryNotify(func() error {
		err := s.apply(ctx, cb)
		if err == nil || errors.Is(err, shared.ErrNotFound{}) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, delay time.Duration) {
		logger.Warn("Payment reference not found yet, retrying", "delay", delay.String(), "error", err)
	})
}

func (s *CallbackService) apply(ctx context.Context, cb *shared.PaymentCallback) error {
	var err error
	switch cb.Kind {
	case shared.CallbackTransactionPayment:
		_, err = s.payments.ApplyPaymentCallback(ctx, cb)
	case shared.CallbackDeposit:
		_, err = s.wallets.ConfirmDeposit(ctx, cb.PaymentRef, cb.Status)
	case shared.CallbackWithdrawal:
		_, err = s.wallets.ConfirmWithdrawal(ctx, cb.PaymentRef, cb.Status)
	}
	return err
}
