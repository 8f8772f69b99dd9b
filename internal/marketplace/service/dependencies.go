// Package service implements the marketplace engines: the credit title registry, the
// listing and proposal engines, settlement, the wallet ledger and the read models.
// Every command runs its state change in one database transaction and writes the
// resulting domain events to the outbox in that same transaction.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/outbox"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/credit-title-marketplace/internal/platform/collaborators"
	"github.com/jackc/pgx/v5"
)

// sweepBatchSize bounds how many rows one sweep pass loads per entity
const sweepBatchSize = 100

// Repositories groups the stores the engines read and write
type Repositories struct {
	Titles       title.Repository
	Listings     listing.Repository
	Proposals    proposal.Repository
	Transactions settlement.Repository
	Accounts     wallet.AccountRepository
	WalletTxs    wallet.TransactionRepository
	Outbox       outbox.Repository
}

// WithTx binds every repository to tx
func (r Repositories) WithTx(tx pgx.Tx) Repositories {
	return Repositories{
		Titles:       r.Titles.WithTx(tx),
		Listings:     r.Listings.WithTx(tx),
		Proposals:    r.Proposals.WithTx(tx),
		Transactions: r.Transactions.WithTx(tx),
		Accounts:     r.Accounts.WithTx(tx),
		WalletTxs:    r.WalletTxs.WithTx(tx),
		Outbox:       r.Outbox.WithTx(tx),
	}
}

// Dependencies are the collaborators shared by the marketplace services
type Dependencies struct {
	DB        TxRunner
	Repos     Repositories
	Validator collaborators.Validator
	Tokenizer collaborators.Tokenizer
	Gateway   collaborators.PaymentGateway
	Velocity  VelocityTracker // optional
	Gate      *compliance.Gate
	Config    config.MarketplaceConfig
	Clock     func() time.Time
	Logger    *slog.Logger
}

func (d *Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

func (d *Dependencies) retry() retryPolicy {
	return retryPolicy{maxRetries: d.Config.CollaboratorMaxRetries, backoff: d.Config.CollaboratorBackoff}
}

// inTx runs fn with repositories bound to a single database transaction
func (d *Dependencies) inTx(ctx context.Context, fn func(repos Repositories) error) error {
	return d.DB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		return fn(d.Repos.WithTx(tx))
	})
}

// emit writes events to the outbox of the surrounding transaction
func emit(ctx context.Context, repo outbox.Repository, events ...*audit.Event) error {
	correlationID := CorrelationIDFromContext(ctx)
	for _, event := range events {
		if event.CorrelationID == "" {
			event.CorrelationID = correlationID
		}
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return fmt.Errorf("failed to build outbox message for %s: %w", event.Type, err)
		}
		if err := repo.Create(ctx, msg); err != nil {
			return fmt.Errorf("failed to write outbox message for %s: %w", event.Type, err)
		}
	}
	return nil
}

type correlationKey struct{}

// WithCorrelationID returns a context whose emitted events carry id
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored by WithCorrelationID
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
