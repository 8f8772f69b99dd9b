// Package mongo stores the append-only audit trail of marketplace events in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// AuditCollectionName is the name of the audit collection in MongoDB
	AuditCollectionName = "audit_events"
)

var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository implements the audit.Repository interface for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureIndexes creates the unique event index and the per-aggregate lookup index
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "aggregate_type", Value: 1}, {Key: "aggregate_id", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
	})
	if err != nil {
		r.logger.Error("Failed to create audit indexes", "error", err)
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Create appends an event to the audit trail.
// Returns ErrDuplicateEvent if the event was already recorded, which makes outbox replays harmless.
func (r *AuditRepository) Create(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(AuditCollectionName)

	recorded := r.now().UTC()
	event.RecordedAt = &recorded

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return audit.ErrDuplicateEvent{EventID: event.EventID}
		}
		r.logger.Error("Failed to create audit event",
			"event_id", event.EventID.String(),
			"event_type", string(event.Type),
			"error", err)
		return fmt.Errorf("failed to create audit event: %w", err)
	}

	return nil
}

// GetByEventID retrieves an audit event by its ID
func (r *AuditRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	var event audit.Event
	err := collection.FindOne(ctx, bson.M{"event_id": eventID}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, audit.ErrEventNotFound{EventID: eventID}
		}
		r.logger.Error("Failed to get audit event",
			"event_id", eventID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	return &event, nil
}

// ListByAggregate returns the events of one aggregate in the order they happened
func (r *AuditRepository) ListByAggregate(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"aggregate_type": aggType, "aggregate_id": aggID}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list audit events",
			"aggregate_type", string(aggType),
			"aggregate_id", aggID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*audit.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events",
			"aggregate_id", aggID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}

// CountByAggregate counts the recorded events of one aggregate
func (r *AuditRepository) CountByAggregate(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID) (int64, error) {
	collection := r.db.Collection(AuditCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"aggregate_type": aggType, "aggregate_id": aggID})
	if err != nil {
		r.logger.Error("Failed to count audit events",
			"aggregate_id", aggID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	return count, nil
}

// GetByTimeRange retrieves paginated audit events within the specified time window.
// Results are sorted by occurrence time in descending order for recent-first access.
func (r *AuditRepository) GetByTimeRange(ctx context.Context, startTime, endTime time.Time, limit, offset int) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{
		"occurred_at": bson.M{
			"$gte": startTime,
			"$lte": endTime,
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit events by time range",
			"start_time", startTime,
			"end_time", endTime,
			"error", err)
		return nil, fmt.Errorf("failed to get audit events by time range: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*audit.Event{}
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events",
			"start_time", startTime,
			"end_time", endTime,
			"error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}
