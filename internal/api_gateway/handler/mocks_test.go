package handler

import (
	"context"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func result[T any](args mock.Arguments) (*T, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*T), args.Error(1)
}

type MockTitleService struct {
	mock.Mock
}

func (m *MockTitleService) RegisterTitle(ctx context.Context, params title.NewTitleParams) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, params))
}

func (m *MockTitleService) GetTitle(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, id))
}

func (m *MockTitleService) AttachDocument(ctx context.Context, titleID, actor uuid.UUID, doc title.Document) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, actor, doc))
}

func (m *MockTitleService) SubmitForValidation(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, actor))
}

func (m *MockTitleService) RunValidation(ctx context.Context, titleID uuid.UUID, timeout time.Duration) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, timeout))
}

func (m *MockTitleService) Tokenize(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, actor))
}

func (m *MockTitleService) CancelTitle(ctx context.Context, titleID, actor uuid.UUID, reason string) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, actor, reason))
}

func (m *MockTitleService) ReverseTitle(ctx context.Context, titleID, admin uuid.UUID, reason string) (*title.Title, error) {
	return result[title.Title](m.Called(ctx, titleID, admin, reason))
}

func (m *MockTitleService) ExpireMaturedTitles(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, titleID, seller uuid.UUID, params listing.NewListingParams) (*listing.Listing, error) {
	return result[listing.Listing](m.Called(ctx, titleID, seller, params))
}

func (m *MockListingService) GetListing(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	return result[listing.Listing](m.Called(ctx, id))
}

func (m *MockListingService) PauseListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error) {
	return result[listing.Listing](m.Called(ctx, id, actor))
}

func (m *MockListingService) ResumeListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error) {
	return result[listing.Listing](m.Called(ctx, id, actor))
}

func (m *MockListingService) SearchListings(ctx context.Context, f listing.Filter) ([]*listing.Listing, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*listing.Listing), args.Error(1)
}

func (m *MockListingService) ExpireListings(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockProposalService struct {
	mock.Mock
}

func (m *MockProposalService) SubmitProposal(ctx context.Context, listingID uuid.UUID, params proposal.NewProposalParams) (*proposal.Proposal, error) {
	return result[proposal.Proposal](m.Called(ctx, listingID, params))
}

func (m *MockProposalService) ReviseProposal(ctx context.Context, id, actor uuid.UUID, value int64, terms proposal.Terms, message string) (*proposal.Proposal, error) {
	return result[proposal.Proposal](m.Called(ctx, id, actor, value, terms, message))
}

func (m *MockProposalService) CancelProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error) {
	return result[proposal.Proposal](m.Called(ctx, id, actor, reason))
}

func (m *MockProposalService) RejectProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error) {
	return result[proposal.Proposal](m.Called(ctx, id, actor, reason))
}

func (m *MockProposalService) AcceptProposal(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor))
}

func (m *MockProposalService) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*proposal.Proposal), args.Error(1)
}

func (m *MockProposalService) ExpireProposals(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockSettlementService struct {
	mock.Mock
}

func (m *MockSettlementService) GetTransaction(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id))
}

func (m *MockSettlementService) RequestPayment(ctx context.Context, id, actor uuid.UUID, method shared.PaymentMethod, details map[string]string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor, method, details))
}

func (m *MockSettlementService) ConfirmPayment(ctx context.Context, id, actor uuid.UUID, proof string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor, proof))
}

func (m *MockSettlementService) ApplyPaymentCallback(ctx context.Context, cb *shared.PaymentCallback) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, cb))
}

func (m *MockSettlementService) ClearComplianceHold(ctx context.Context, id, reviewer uuid.UUID, note string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, reviewer, note))
}

func (m *MockSettlementService) CancelTransaction(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor, reason))
}

func (m *MockSettlementService) OpenDispute(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor, reason))
}

func (m *MockSettlementService) ResolveDispute(ctx context.Context, id, admin uuid.UUID, outcome settlement.DisputeOutcome, note string) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, admin, outcome, note))
}

func (m *MockSettlementService) Settle(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error) {
	return result[settlement.Transaction](m.Called(ctx, id, actor))
}

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) OpenAccount(ctx context.Context, ownerID uuid.UUID, kind wallet.Kind) (*wallet.Account, error) {
	return result[wallet.Account](m.Called(ctx, ownerID, kind))
}

func (m *MockWalletService) EnsurePlatformAccount(ctx context.Context) (*wallet.Account, error) {
	return result[wallet.Account](m.Called(ctx))
}

func (m *MockWalletService) GetAccount(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	return result[wallet.Account](m.Called(ctx, id))
}

func (m *MockWalletService) ListTransactions(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*wallet.Transaction, int64, error) {
	args := m.Called(ctx, accountID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*wallet.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockWalletService) Deposit(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, accountID, actor, amount, method))
}

func (m *MockWalletService) ConfirmDeposit(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, ref, status))
}

func (m *MockWalletService) Withdraw(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, accountID, actor, amount, method))
}

func (m *MockWalletService) ConfirmWithdrawal(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error) {
	return result[wallet.Transaction](m.Called(ctx, ref, status))
}

type MockPortfolioService struct {
	mock.Mock
}

func (m *MockPortfolioService) GetPortfolio(ctx context.Context, ownerID uuid.UUID) (*service.Portfolio, error) {
	return result[service.Portfolio](m.Called(ctx, ownerID))
}

type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) ListEvents(ctx context.Context, aggType audit.AggregateType, aggID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error) {
	args := m.Called(ctx, aggType, aggID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Event), args.Get(1).(int64), args.Error(2)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

var (
	_ service.TitleService      = (*MockTitleService)(nil)
	_ service.ListingService    = (*MockListingService)(nil)
	_ service.ProposalService   = (*MockProposalService)(nil)
	_ service.SettlementService = (*MockSettlementService)(nil)
	_ service.WalletService     = (*MockWalletService)(nil)
	_ service.PortfolioService  = (*MockPortfolioService)(nil)
	_ service.EventService      = (*MockEventService)(nil)
)
