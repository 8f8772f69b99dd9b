package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Do(t *testing.T) {
	logger := newTestLogger()

	t.Run("SucceedsAfterFailures", func(t *testing.T) {
		p := retryPolicy{maxRetries: 3, backoff: time.Millisecond}
		calls := 0
		err := p.do(context.Background(), logger, "op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Exhausted", func(t *testing.T) {
		p := retryPolicy{maxRetries: 2, backoff: time.Millisecond}
		calls := 0
		err := p.do(context.Background(), logger, "op", func(ctx context.Context) error {
			calls++
			return errors.New("still down")
		})
		assert.ErrorIs(t, err, shared.ErrCollaboratorUnavailable)
		assert.Contains(t, err.Error(), "still down")
		assert.Equal(t, 3, calls)
	})

	t.Run("NoRetries", func(t *testing.T) {
		p := retryPolicy{}
		calls := 0
		err := p.do(context.Background(), logger, "op", func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.ErrorIs(t, err, shared.ErrCollaboratorUnavailable)
		assert.Equal(t, 1, calls)
	})

	t.Run("DeadlineIsTimeout", func(t *testing.T) {
		p := retryPolicy{maxRetries: 5, backoff: time.Hour}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := p.do(ctx, logger, "op", func(ctx context.Context) error {
			return errors.New("slow")
		})
		assert.ErrorIs(t, err, shared.ErrCollaboratorTimeout)
	})

	t.Run("CancelledIsNotTimeout", func(t *testing.T) {
		p := retryPolicy{maxRetries: 5, backoff: time.Millisecond}
		ctx, cancel := context.WithCancel(context.Background())
		err := p.do(ctx, logger, "op", func(ctx context.Context) error {
			cancel()
			return errors.New("interrupted")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, shared.ErrCollaboratorTimeout)
	})
}
