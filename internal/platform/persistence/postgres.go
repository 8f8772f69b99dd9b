package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/credit-title-marketplace/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Ensure interfaces are satisfied (compile-time check)
var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// txMaxAttempts bounds how often ExecuteTx replays a transaction the server aborted
const txMaxAttempts = 3

// IsUniqueViolation reports whether err comes from a unique constraint
func IsUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}

// isTransientTxError reports aborts that a fresh attempt of the same transaction can clear
func isTransientTxError(err error) bool {
	switch sqlState(err) {
	case serializationFailure, deadlockDetected:
		return true
	}
	return false
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresDB struct {
	pool     *pgxpool.Pool
	beginner txBeginner
	logger   *slog.Logger
	txRetry  time.Duration
}

func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	err := RunMigrations(logger, cfg.URL, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")

	return &PostgresDB{
		pool:     pool,
		beginner: pool,
		logger:   logger,
		txRetry:  20 * time.Millisecond,
	}, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// ExecuteTx runs fn in a transaction, rolling back on error or panic. A
// serialization failure or deadlock replays fn in a new transaction, up to
// txMaxAttempts in total; fn must not keep state across attempts.
func (db *PostgresDB) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = db.txRetry
	schedule.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := db.executeTxOnce(ctx, fn)
		if err != nil && !isTransientTxError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(schedule, txMaxAttempts-1), ctx), func(err error, delay time.Duration) {
		db.logger.Warn("Transaction aborted by the server, retrying",
			"attempt", attempt,
			"sqlstate", sqlState(err),
			"delay", delay.String(),
		)
	})
}

func (db *PostgresDB) executeTxOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx) // Attempt rollback on panic
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}
