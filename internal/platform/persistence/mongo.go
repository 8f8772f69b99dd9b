package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/credit-title-marketplace/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoDB holds the client and database backing the audit trail
type MongoDB struct {
	logger   *slog.Logger
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoDB(ctx context.Context, logger *slog.Logger, cfg *config.MongoDBConfig) (*MongoDB, error) {
	clientOptions, err := mongoClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", "database", cfg.Database)
	return newMongoDB(logger, client, cfg.Database), nil
}

func newMongoDB(logger *slog.Logger, client *mongo.Client, database string) *MongoDB {
	return &MongoDB{
		logger:   logger,
		client:   client,
		database: client.Database(database),
	}
}

// mongoClientOptions builds the driver options. Audit events are written with
// majority acknowledgement; a retried insert is absorbed by the unique event_id
// index, so retryable writes stay on.
func mongoClientOptions(cfg *config.MongoDBConfig) (*options.ClientOptions, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongodb database cannot be empty")
	}
	if cfg.MaxPoolSize > 0 && cfg.MinPoolSize > cfg.MaxPoolSize {
		return nil, fmt.Errorf("mongodb min pool size %d exceeds max pool size %d", cfg.MinPoolSize, cfg.MaxPoolSize)
	}

	return options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetWriteConcern(writeconcern.Majority()).
		SetRetryWrites(true), nil
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed MongoDB connection")
	return nil
}
