package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/credit-title-marketplace/internal/config"
	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/credit-title-marketplace/internal/platform/collaborators"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubTokenizer fails its first `failures` calls
type stubTokenizer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *stubTokenizer) Mint(ctx context.Context, t *title.Title) (collaborators.MintResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return collaborators.MintResult{}, errors.New("registry node unreachable")
	}
	return collaborators.MintResult{TokenID: "tok-" + t.Number, ContractRef: "test-registry", TxHash: "0xfeed"}, nil
}

// blockingValidator never answers before its context is done
type blockingValidator struct{}

func (blockingValidator) Validate(ctx context.Context, _ []title.Document, _ title.Type) (collaborators.ValidationResult, error) {
	<-ctx.Done()
	return collaborators.ValidationResult{}, ctx.Err()
}

// flakyGateway fails Initiate a fixed number of times before delegating
type flakyGateway struct {
	collaborators.PaymentGateway
	mu               sync.Mutex
	initiateFailures int
	initiateCalls    int
}

func (g *flakyGateway) Initiate(ctx context.Context, amount int64, method shared.PaymentMethod) (string, error) {
	g.mu.Lock()
	g.initiateCalls++
	fail := g.initiateCalls <= g.initiateFailures
	g.mu.Unlock()
	if fail {
		return "", errors.New("gateway returned 502")
	}
	return g.PaymentGateway.Initiate(ctx, amount, method)
}

// memVelocity is an in-memory VelocityTracker; onHistory runs before each lookup
type memVelocity struct {
	mu        sync.Mutex
	counts    map[uuid.UUID]int64
	volumes   map[uuid.UUID]int64
	onHistory func()
}

func newMemVelocity() *memVelocity {
	return &memVelocity{counts: map[uuid.UUID]int64{}, volumes: map[uuid.UUID]int64{}}
}

func (v *memVelocity) History(ctx context.Context, partyID uuid.UUID, role string, now time.Time) (compliance.PartyHistory, error) {
	v.mu.Lock()
	hook := v.onHistory
	v.onHistory = nil
	v.mu.Unlock()
	if hook != nil {
		hook()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return compliance.PartyHistory{PartyID: partyID, Role: role, Count: v.counts[partyID], Volume: v.volumes[partyID]}, nil
}

func (v *memVelocity) Record(ctx context.Context, partyID uuid.UUID, value int64, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[partyID]++
	v.volumes[partyID] += value
	return nil
}

type harness struct {
	store     *memStore
	clock     *fakeClock
	gateway   *flakyGateway
	sandbox   *collaborators.SandboxGateway
	tokenizer *stubTokenizer
	velocity  *memVelocity
	deps      *Dependencies

	titles      TitleService
	listings    ListingService
	proposals   ProposalService
	settlements SettlementService
	wallets     WalletService
	portfolio   PortfolioService

	platformOwner uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := newTestLogger()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	sandbox := collaborators.NewSandboxGateway(logger)
	h := &harness{
		store:         store,
		clock:         clock,
		sandbox:       sandbox,
		gateway:       &flakyGateway{PaymentGateway: sandbox},
		tokenizer:     &stubTokenizer{},
		velocity:      newMemVelocity(),
		platformOwner: uuid.New(),
	}
	h.deps = &Dependencies{
		DB:        store,
		Repos:     store.repositories(),
		Validator: collaborators.NewSandboxValidator(logger),
		Tokenizer: h.tokenizer,
		Gateway:   h.gateway,
		Velocity:  h.velocity,
		Gate:      compliance.NewGate(compliance.DefaultThreshold, compliance.VelocityHeuristic{MaxCount: 5}),
		Config: config.MarketplaceConfig{
			PlatformOwnerID:        h.platformOwner,
			FeeRate:                decimal.RequireFromString("0.025"),
			ComplianceThreshold:    compliance.DefaultThreshold,
			VelocityLimit:          5,
			ProposalTTL:            48 * time.Hour,
			ValidationTimeout:      time.Second,
			CollaboratorMaxRetries: 2,
			CollaboratorBackoff:    time.Millisecond,
			ReversalWindow:         72 * time.Hour,
		},
		Clock:  clock.Now,
		Logger: logger,
	}
	h.titles = NewTitleService(h.deps)
	h.listings = NewListingService(h.deps)
	h.proposals = NewProposalService(h.deps)
	h.settlements = NewSettlementService(h.deps)
	h.wallets = NewWalletService(h.deps)
	h.portfolio = NewPortfolioService(h.deps)

	_, err := h.wallets.EnsurePlatformAccount(context.Background())
	require.NoError(t, err)
	return h
}

// validatedTitle registers a title for owner and takes it through validation
func (h *harness) validatedTitle(t *testing.T, owner uuid.UUID, value int64) *title.Title {
	t.Helper()
	ctx := context.Background()
	now := h.clock.Now()
	tt, err := h.titles.RegisterTitle(ctx, title.NewTitleParams{
		Type:          title.TypeCreditoTributario,
		Category:      title.CategoryTributario,
		OriginalValue: value,
		IssueDate:     now.AddDate(-1, 0, 0),
		MaturityDate:  now.AddDate(1, 0, 0),
		OwnerID:       owner,
		IssuerName:    "Receita Federal",
		Debtor:        "Uniao",
		Documents:     []title.Document{{Name: "perdcomp.pdf", Kind: "perdcomp", URL: "s3://docs/perdcomp.pdf"}},
	})
	require.NoError(t, err)
	_, err = h.titles.SubmitForValidation(ctx, tt.ID, owner)
	require.NoError(t, err)
	tt, err = h.titles.RunValidation(ctx, tt.ID, 0)
	require.NoError(t, err)
	require.Equal(t, title.StatusValidated, tt.Status)
	return tt
}

func standardPricing(value int64) listing.Pricing {
	return listing.Pricing{OriginalValue: value, MinimumValue: value * 8 / 10, SuggestedValue: value * 9 / 10}
}

func (h *harness) listTitle(t *testing.T, tt *title.Title, modality listing.Modality) *listing.Listing {
	t.Helper()
	l, err := h.listings.CreateListing(context.Background(), tt.ID, tt.OwnerID, listing.NewListingParams{
		Pricing:   standardPricing(tt.AvailableValue),
		Modality:  modality,
		ExpiresAt: h.clock.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return l
}

func acquisitionTerms() proposal.Terms {
	return proposal.Terms{Installments: 1, Purpose: proposal.PurposeAcquisition}
}

func (h *harness) propose(t *testing.T, l *listing.Listing, buyer uuid.UUID, value int64) *proposal.Proposal {
	t.Helper()
	p, err := h.proposals.SubmitProposal(context.Background(), l.ID, proposal.NewProposalParams{
		BuyerID: buyer,
		Value:   value,
		Terms:   acquisitionTerms(),
	})
	require.NoError(t, err)
	return p
}

// fundedAccount opens a wallet for owner and deposits amount through the gateway
func (h *harness) fundedAccount(t *testing.T, owner uuid.UUID, amount int64) *wallet.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := h.wallets.OpenAccount(ctx, owner, wallet.KindUser)
	require.NoError(t, err)
	if amount > 0 {
		wtx, err := h.wallets.Deposit(ctx, acc.ID, owner, amount, shared.PaymentMethodPix)
		require.NoError(t, err)
		_, err = h.wallets.ConfirmDeposit(ctx, wtx.ExternalRef, shared.PaymentStatusConfirmed)
		require.NoError(t, err)
	}
	acc, err = h.wallets.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	return acc
}

func (h *harness) accountOf(t *testing.T, owner uuid.UUID) *wallet.Account {
	t.Helper()
	acc, err := h.deps.Repos.Accounts.GetByOwnerID(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, acc, "owner %s has no account", owner)
	return acc
}
