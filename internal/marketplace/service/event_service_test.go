package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuditRepo for testing
type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) Create(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockAuditRepo) GetByEventID(ctx context.Context, eventID uuid.UUID) (*audit.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Event), args.Error(1)
}

func (m *MockAuditRepo) ListByAggregate(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	args := m.Called(ctx, aggType, aggID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Event), args.Error(1)
}

func (m *MockAuditRepo) CountByAggregate(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID) (int64, error) {
	args := m.Called(ctx, aggType, aggID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuditRepo) GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*audit.Event, error) {
	args := m.Called(ctx, startTime, endTime, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Event), args.Error(1)
}

func TestEventService_ListEvents(t *testing.T) {
	ctx := context.Background()
	titleID := uuid.New()

	t.Run("Paged", func(t *testing.T) {
		repo := new(MockAuditRepo)
		svc := NewEventService(repo)
		events := []*audit.Event{
			audit.NewEvent(audit.AggregateTitle, titleID, audit.TitleValidated, shared.SystemActor, "validated", time.Now()),
		}
		repo.On("ListByAggregate", ctx, audit.AggregateTitle, titleID, 10, 10).Return(events, nil)
		repo.On("CountByAggregate", ctx, audit.AggregateTitle, titleID).Return(int64(11), nil)

		got, total, err := svc.ListEvents(ctx, audit.AggregateTitle, titleID, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, events, got)
		assert.Equal(t, int64(11), total)
		repo.AssertExpectations(t)
	})

	t.Run("MissingID", func(t *testing.T) {
		repo := new(MockAuditRepo)
		svc := NewEventService(repo)

		_, _, err := svc.ListEvents(ctx, audit.AggregateTitle, uuid.Nil, 1, 10)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		repo.AssertNotCalled(t, "ListByAggregate")
	})

	t.Run("StoreError", func(t *testing.T) {
		repo := new(MockAuditRepo)
		svc := NewEventService(repo)
		repo.On("ListByAggregate", ctx, audit.AggregateListing, titleID, defaultPerPage, 0).Return(nil, errors.New("mongo down"))

		_, _, err := svc.ListEvents(ctx, audit.AggregateListing, titleID, 0, 0)
		assert.EqualError(t, err, "mongo down")
		repo.AssertNotCalled(t, "CountByAggregate")
	})
}
