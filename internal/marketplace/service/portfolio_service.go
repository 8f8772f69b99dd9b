package service

import (
	"context"

	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/google/uuid"
)

// PortfolioTotals summarizes a portfolio in centavos
type PortfolioTotals struct {
	TitlesHeld          int   `json:"titles_held"`
	AvailableTitleValue int64 `json:"available_title_value"`
	OpenListings        int   `json:"open_listings"`
	PendingProposals    int   `json:"pending_proposals"`
	ActiveTransactions  int   `json:"active_transactions"`
	SettledPurchases    int64 `json:"settled_purchases"`
	SettledSales        int64 `json:"settled_sales"`
}

// Portfolio is the read-only view of everything a party holds on the marketplace
type Portfolio struct {
	OwnerID      uuid.UUID                 `json:"owner_id"`
	Titles       []*title.Title            `json:"titles"`
	Listings     []*listing.Listing        `json:"listings"`
	Proposals    []*proposal.Proposal      `json:"proposals"`
	Transactions []*settlement.Transaction `json:"transactions"`
	Account      *wallet.Account           `json:"account,omitempty"`
	Totals       PortfolioTotals           `json:"totals"`
}

// PortfolioServiceImpl implements the PortfolioService interface
type PortfolioServiceImpl struct {
	deps *Dependencies
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(deps *Dependencies) PortfolioService {
	return &PortfolioServiceImpl{deps: deps}
}

// GetPortfolio aggregates titles, listings, proposals, transactions and wallet of ownerID
func (s *PortfolioServiceImpl) GetPortfolio(ctx context.Context, ownerID uuid.UUID) (*Portfolio, error) {
	repos := s.deps.Repos
	now := s.deps.now()

	titles, err := repos.Titles.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	listings, err := repos.Listings.ListBySeller(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	proposals, err := repos.Proposals.ListByBuyer(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	txs, err := repos.Transactions.ListByParty(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	acc, err := repos.Accounts.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		OwnerID:      ownerID,
		Titles:       titles,
		Listings:     make([]*listing.Listing, 0, len(listings)),
		Proposals:    proposals,
		Transactions: txs,
		Account:      acc,
	}
	for _, t := range titles {
		if t.Status.Terminal() && t.Status != title.StatusSold && t.Status != title.StatusCompensated {
			continue
		}
		p.Totals.TitlesHeld++
		p.Totals.AvailableTitleValue += t.AvailableValue
	}
	for _, l := range listings {
		view := *l
		view.Status = l.EffectiveStatus(now)
		if !view.Status.Terminal() {
			p.Totals.OpenListings++
		}
		p.Listings = append(p.Listings, &view)
	}
	for _, pr := range proposals {
		if pr.Status == proposal.StatusPending && !pr.ExpiredAt(now) {
			p.Totals.PendingProposals++
		}
	}
	for _, tx := range txs {
		switch {
		case tx.Active():
			p.Totals.ActiveTransactions++
		case tx.Status == settlement.StatusSettled && tx.BuyerID == ownerID:
			p.Totals.SettledPurchases += tx.Value
		case tx.Status == settlement.StatusSettled && tx.SellerID == ownerID:
			p.Totals.SettledSales += tx.Value
		}
	}
	return p, nil
}
