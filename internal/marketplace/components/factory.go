// Package components wires repositories, collaborators and the compliance gate into
// the marketplace engines shared by the API and the settlement worker.
package components

import (
	"log/slog"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/data/cache"
	"github.com/credit-title-marketplace/internal/data/postgres"
	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/credit-title-marketplace/internal/platform/collaborators"
	"github.com/credit-title-marketplace/internal/platform/persistence"
	"github.com/redis/go-redis/v9"
)

// Services groups the marketplace engines
type Services struct {
	Titles      service.TitleService
	Listings    service.ListingService
	Proposals   service.ProposalService
	Settlements service.SettlementService
	Wallets     service.WalletService
	Portfolio   service.PortfolioService
	Events      service.EventService
}

// Collaborators are the external services the engines call out to
type Collaborators struct {
	Validator collaborators.Validator
	Tokenizer collaborators.Tokenizer
	Gateway   collaborators.PaymentGateway
}

// SandboxCollaborators returns the deterministic local implementations
func SandboxCollaborators(logger *slog.Logger) Collaborators {
	return Collaborators{
		Validator: collaborators.NewSandboxValidator(logger.With("component", "validator")),
		Tokenizer: collaborators.NewSandboxTokenizer(logger.With("component", "tokenizer"), ""),
		Gateway:   collaborators.NewSandboxGateway(logger.With("component", "payment_gateway")),
	}
}

// NewRepositories builds the PostgreSQL repositories
func NewRepositories(pgDB *persistence.PostgresDB, logger *slog.Logger) service.Repositories {
	return service.Repositories{
		Titles:       postgres.NewTitleRepository(logger, pgDB),
		Listings:     postgres.NewListingRepository(logger, pgDB),
		Proposals:    postgres.NewProposalRepository(logger, pgDB),
		Transactions: postgres.NewTransactionRepository(logger, pgDB),
		Accounts:     postgres.NewAccountRepository(logger, pgDB),
		WalletTxs:    postgres.NewWalletTransactionRepository(logger, pgDB),
		Outbox:       postgres.NewOutboxRepository(logger, pgDB),
	}
}

// NewDependencies assembles the engine dependencies. redisClient may be nil, which
// disables the velocity heuristic.
func NewDependencies(
	db service.TxRunner,
	repos service.Repositories,
	collab Collaborators,
	redisClient redis.Cmdable,
	logger *slog.Logger,
	cfg *config.Config,
) *service.Dependencies {
	deps := &service.Dependencies{
		DB:        db,
		Repos:     repos,
		Validator: collab.Validator,
		Tokenizer: collab.Tokenizer,
		Gateway:   collab.Gateway,
		Config:    cfg.Marketplace,
		Logger:    logger,
	}

	if redisClient != nil {
		deps.Velocity = cache.NewVelocityStore(logger.With("component", "velocity_store"), redisClient, cfg.Redis.VelocityWindow)
		deps.Gate = compliance.NewGate(cfg.Marketplace.ComplianceThreshold, compliance.VelocityHeuristic{MaxCount: cfg.Marketplace.VelocityLimit})
	} else {
		logger.Warn("Redis is not configured, velocity heuristic disabled")
		deps.Gate = compliance.NewGate(cfg.Marketplace.ComplianceThreshold)
	}
	return deps
}

// CreateServices builds every engine over deps; auditRepo backs the event reader
func CreateServices(deps *service.Dependencies, auditRepo audit.Repository) *Services {
	return &Services{
		Titles:      service.NewTitleService(deps),
		Listings:    service.NewListingService(deps),
		Proposals:   service.NewProposalService(deps),
		Settlements: service.NewSettlementService(deps),
		Wallets:     service.NewWalletService(deps),
		Portfolio:   service.NewPortfolioService(deps),
		Events:      service.NewEventService(auditRepo),
	}
}
