package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCallbackProcessor mocks the CallbackProcessor interface
type MockCallbackProcessor struct {
	mock.Mock
}

func (m *MockCallbackProcessor) ProcessCallback(ctx context.Context, cb *shared.PaymentCallback) error {
	args := m.Called(ctx, cb)
	return args.Error(0)
}

func TestWorkerPoolCallbackProcessor_ProcessCallback(t *testing.T) {
	cb := &shared.PaymentCallback{
		Kind:          shared.CallbackDeposit,
		PaymentRef:    "PAY-1",
		Status:        shared.PaymentStatusConfirmed,
		CorrelationID: "corr1",
	}

	tests := []struct {
		name          string
		setupMocks    func(m *MockCallbackProcessor)
		expectedError error
	}{
		{
			name: "successful processing",
			setupMocks: func(m *MockCallbackProcessor) {
				m.On("ProcessCallback", mock.Anything, cb).Return(nil).Once()
			},
		},
		{
			name: "processing error",
			setupMocks: func(m *MockCallbackProcessor) {
				m.On("ProcessCallback", mock.Anything, cb).Return(errors.New("processing error")).Once()
			},
			expectedError: errors.New("processing error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &MockCallbackProcessor{}
			tt.setupMocks(base)
			pool, err := NewWorkerPoolCallbackProcessor(base, WorkerPoolConfig{Size: 2}, slog.Default())
			require.NoError(t, err)
			defer pool.Shutdown()

			err = pool.ProcessCallback(context.Background(), cb)
			assert.Equal(t, tt.expectedError, err)
			base.AssertExpectations(t)
		})
	}
}

type slowProcessor struct {
	active, peak atomic.Int32
}

func (p *slowProcessor) ProcessCallback(ctx context.Context, cb *shared.PaymentCallback) error {
	n := p.active.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.active.Add(-1)
	return nil
}

func TestWorkerPoolCallbackProcessor_BoundsConcurrency(t *testing.T) {
	base := &slowProcessor{}
	pool, err := NewWorkerPoolCallbackProcessor(base, WorkerPoolConfig{Size: 2}, slog.Default())
	require.NoError(t, err)
	defer pool.Shutdown()
	assert.Equal(t, 2, pool.Capacity())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.ProcessCallback(context.Background(), &shared.PaymentCallback{PaymentRef: "PAY"}))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, base.peak.Load(), int32(2))
}
