// Package config provides configuration structures and validation for the marketplace.
// It handles environment-based configuration for the HTTP API, the settlement worker,
// their storage and messaging backends, and the marketplace business parameters.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Marketplace MarketplaceConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or text
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers              string
	NotificationTopic    string // Marketplace events fanned out to the notification sink
	PaymentCallbackTopic string // Payment gateway callbacks (at-least-once delivery)
	NumPartitions        int
	ReplicationFactor    int
	ConsumerGroup        string
	MinBytes             int
	MaxBytes             int
	MaxWait              time.Duration
	StartOffset          int64
	DLQTopic             string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the Redis connection used by the compliance velocity counters
type RedisConfig struct {
	URL            string
	VelocityWindow time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
	// ReferenceWait bounds how long a callback for a reference not yet committed is retried
	ReferenceWait time.Duration
}

// MarketplaceConfig holds the business parameters of the negotiation and settlement engines
type MarketplaceConfig struct {
	PlatformOwnerID        uuid.UUID       // Owner of the platform fee account
	FeeRate                decimal.Decimal // Fraction of the transaction value kept by the platform
	ComplianceThreshold    int64           // Centavos; values at or above are held for review
	VelocityLimit          int64           // Transactions per party inside the velocity window
	ProposalTTL            time.Duration
	ValidationTimeout      time.Duration
	CollaboratorMaxRetries int
	CollaboratorBackoff    time.Duration
	ReversalWindow         time.Duration
	SweepInterval          time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	if f := c.Logging.Format; f != "json" && f != "text" {
		validationErrors = append(validationErrors, "LOG_FORMAT must be json or text")
	}

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.NotificationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.Kafka.PaymentCallbackTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYMENT_CALLBACK_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.URL == "" {
		validationErrors = append(validationErrors, "REDIS_URL is required")
	}
	if c.Redis.VelocityWindow <= 0 {
		validationErrors = append(validationErrors, "REDIS_VELOCITY_WINDOW must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}
	if c.WorkerPool.ReferenceWait < 0 {
		validationErrors = append(validationErrors, "WORKER_CALLBACK_REFERENCE_WAIT cannot be negative")
	}

	// Validate Marketplace config
	if c.Marketplace.PlatformOwnerID == uuid.Nil {
		validationErrors = append(validationErrors, "MARKETPLACE_PLATFORM_OWNER_ID must be a valid UUID")
	}
	if c.Marketplace.FeeRate.IsNegative() || c.Marketplace.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		validationErrors = append(validationErrors, "MARKETPLACE_FEE_RATE must be in [0, 1)")
	}
	if c.Marketplace.ComplianceThreshold <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_COMPLIANCE_THRESHOLD must be greater than 0")
	}
	if c.Marketplace.VelocityLimit <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_VELOCITY_LIMIT must be greater than 0")
	}
	if c.Marketplace.ProposalTTL <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_PROPOSAL_TTL must be greater than 0")
	}
	if c.Marketplace.ValidationTimeout <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_VALIDATION_TIMEOUT must be greater than 0")
	}
	if c.Marketplace.CollaboratorMaxRetries < 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_COLLABORATOR_MAX_RETRIES cannot be negative")
	}
	if c.Marketplace.CollaboratorBackoff <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_COLLABORATOR_BACKOFF must be greater than 0")
	}
	if c.Marketplace.ReversalWindow <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_REVERSAL_WINDOW must be greater than 0")
	}
	if c.Marketplace.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "MARKETPLACE_SWEEP_INTERVAL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
