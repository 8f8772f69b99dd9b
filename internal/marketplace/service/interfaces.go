package service

import (
	"context"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxRunner runs fn inside one database transaction, rolling back when it returns an error
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// VelocityTracker supplies and records the recent activity the compliance heuristics look at
type VelocityTracker interface {
	History(ctx context.Context, partyID uuid.UUID, role string, now time.Time) (compliance.PartyHistory, error)
	Record(ctx context.Context, partyID uuid.UUID, value int64, now time.Time) error
}

// TitleService defines the credit title registry operations
type TitleService interface {
	RegisterTitle(ctx context.Context, params title.NewTitleParams) (*title.Title, error)
	GetTitle(ctx context.Context, id uuid.UUID) (*title.Title, error)
	AttachDocument(ctx context.Context, titleID, actor uuid.UUID, doc title.Document) (*title.Title, error)
	SubmitForValidation(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error)

	// RunValidation asks the validator for a verdict, waiting at most timeout.
	// On timeout the title stays validating and ErrCollaboratorTimeout is returned.
	RunValidation(ctx context.Context, titleID uuid.UUID, timeout time.Duration) (*title.Title, error)

	// Tokenize mints the title; a mint failure returns it to validated
	Tokenize(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error)
	CancelTitle(ctx context.Context, titleID, actor uuid.UUID, reason string) (*title.Title, error)
	ReverseTitle(ctx context.Context, titleID, admin uuid.UUID, reason string) (*title.Title, error)
	ExpireMaturedTitles(ctx context.Context) (int, error)
}

// ListingService defines the listing engine operations
type ListingService interface {
	CreateListing(ctx context.Context, titleID, seller uuid.UUID, params listing.NewListingParams) (*listing.Listing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*listing.Listing, error)
	PauseListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error)
	ResumeListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error)
	SearchListings(ctx context.Context, f listing.Filter) ([]*listing.Listing, error)
	ExpireListings(ctx context.Context) (int, error)
}

// ProposalService defines the negotiation operations
type ProposalService interface {
	SubmitProposal(ctx context.Context, listingID uuid.UUID, params proposal.NewProposalParams) (*proposal.Proposal, error)
	ReviseProposal(ctx context.Context, id, actor uuid.UUID, value int64, terms proposal.Terms, message string) (*proposal.Proposal, error)
	CancelProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error)
	RejectProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error)

	// AcceptProposal accepts one proposal, rejects its pending siblings, finalizes the
	// listing and opens the transaction in a single unit of work
	AcceptProposal(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error)
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error)
	ExpireProposals(ctx context.Context) (int, error)
}

// SettlementService defines the transaction and settlement operations
type SettlementService interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error)
	RequestPayment(ctx context.Context, id, actor uuid.UUID, method shared.PaymentMethod, details map[string]string) (*settlement.Transaction, error)
	ConfirmPayment(ctx context.Context, id, actor uuid.UUID, proof string) (*settlement.Transaction, error)

	// ApplyPaymentCallback applies a gateway callback; repeated deliveries are no-ops
	ApplyPaymentCallback(ctx context.Context, cb *shared.PaymentCallback) (*settlement.Transaction, error)
	ClearComplianceHold(ctx context.Context, id, reviewer uuid.UUID, note string) (*settlement.Transaction, error)
	CancelTransaction(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error)
	OpenDispute(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error)
	ResolveDispute(ctx context.Context, id, admin uuid.UUID, outcome settlement.DisputeOutcome, note string) (*settlement.Transaction, error)
	Settle(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error)
}

// WalletService defines the ledger account operations
type WalletService interface {
	OpenAccount(ctx context.Context, ownerID uuid.UUID, kind wallet.Kind) (*wallet.Account, error)
	EnsurePlatformAccount(ctx context.Context) (*wallet.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*wallet.Account, error)

	// ListTransactions returns a page of wallet transactions and the total count
	ListTransactions(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*wallet.Transaction, int64, error)
	Deposit(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error)
	ConfirmDeposit(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error)
	Withdraw(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error)
	ConfirmWithdrawal(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error)
}

// PortfolioService aggregates everything a party holds on the marketplace
type PortfolioService interface {
	GetPortfolio(ctx context.Context, ownerID uuid.UUID) (*Portfolio, error)
}

// EventService reads the audit log
type EventService interface {
	ListEvents(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error)
}
