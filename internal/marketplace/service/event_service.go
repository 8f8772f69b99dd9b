package service

import (
	"context"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// EventServiceImpl implements the EventService interface over the audit log
type EventServiceImpl struct {
	repo audit.Repository
}

// NewEventService creates a new audit log reader
func NewEventService(repo audit.Repository) EventService {
	return &EventServiceImpl{repo: repo}
}

// ListEvents returns one page of an aggregate's events in occurrence order and the total count
func (s *EventServiceImpl) ListEvents(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error) {
	if aggID == uuid.Nil {
		return nil, 0, shared.Precondition(shared.ErrInvalidInput, "aggregate id is required")
	}
	limit, offset := normalizePage(page, perPage)

	events, err := s.repo.ListByAggregate(ctx, aggType, aggID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByAggregate(ctx, aggType, aggID)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
