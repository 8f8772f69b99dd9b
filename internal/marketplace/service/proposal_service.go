package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/compliance"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// ProposalServiceImpl implements the ProposalService interface
type ProposalServiceImpl struct {
	deps   *Dependencies
	logger *slog.Logger
}

// NewProposalService creates a new proposal service
func NewProposalService(deps *Dependencies) ProposalService {
	return &ProposalServiceImpl{
		deps:   deps,
		logger: deps.Logger.With("component", "proposal_service"),
	}
}

func proposalEvent(p *proposal.Proposal, typ audit.EventType, actor uuid.UUID, summary string, seller uuid.UUID, now time.Time) *audit.Event {
	return audit.NewEvent(audit.AggregateProposal, p.ID, typ, actor, summary, now, p.BuyerID, seller).
		With("listing_id", p.ListingID.String()).
		With("value", fmt.Sprint(p.Value)).
		With("status", string(p.Status))
}

// SubmitProposal records a buyer's offer on an active listing
func (s *ProposalServiceImpl) SubmitProposal(ctx context.Context, listingID uuid.UUID, params proposal.NewProposalParams) (*proposal.Proposal, error) {
	now := s.deps.now()
	var created *proposal.Proposal

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, listingID)
		if err != nil {
			return err
		}
		if !l.IsActiveAt(now) {
			return shared.Precondition(shared.ErrListingNotActive, "listing %s is %s", l.ID, l.EffectiveStatus(now))
		}
		if params.BuyerID == l.SellerID {
			return shared.Precondition(shared.ErrSelfDealingNotAllowed, "seller cannot bid on their own listing")
		}
		t, err := repos.Titles.GetByID(ctx, l.TitleID)
		if err != nil {
			return err
		}
		if params.BuyerID == t.OwnerID {
			return shared.Precondition(shared.ErrSelfDealingNotAllowed, "title owner cannot bid on their own title")
		}
		if l.Modality != listing.ModalityAuction && params.Value < l.Pricing.MinimumValue {
			return shared.Precondition(shared.ErrBelowMinimum, "offered %d is below the minimum %d", params.Value, l.Pricing.MinimumValue)
		}

		p, err := proposal.New(l.ID, params, l.ProposalExpiry(s.deps.Config.ProposalTTL, now), now)
		if err != nil {
			return err
		}
		if err := repos.Proposals.Create(ctx, p); err != nil {
			return err
		}
		created = p
		return emit(ctx, repos.Outbox, proposalEvent(p, audit.ProposalSubmitted, p.BuyerID, "new proposal received", l.SellerID, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proposal submitted",
		"proposal_id", created.ID.String(),
		"listing_id", listingID.String(),
		"value", created.Value,
	)
	return created, nil
}

// ReviseProposal lets the buyer change value and terms while the proposal is pending
func (s *ProposalServiceImpl) ReviseProposal(ctx context.Context, id, actor uuid.UUID, value int64, terms proposal.Terms, message string) (*proposal.Proposal, error) {
	current, err := s.deps.Repos.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	var updated *proposal.Proposal
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, current.ListingID)
		if err != nil {
			return err
		}
		p, err := repos.Proposals.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.BuyerID != actor {
			return shared.Precondition(shared.ErrNotProposalBuyer, "actor %s did not submit proposal %s", actor, p.ID)
		}
		if !l.IsActiveAt(now) {
			return shared.Precondition(shared.ErrListingNotActive, "listing %s is %s", l.ID, l.EffectiveStatus(now))
		}
		if l.Modality != listing.ModalityAuction && value < l.Pricing.MinimumValue {
			return shared.Precondition(shared.ErrBelowMinimum, "offered %d is below the minimum %d", value, l.Pricing.MinimumValue)
		}
		if err := p.Revise(value, terms, message, now); err != nil {
			return err
		}
		if err := repos.Proposals.Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return emit(ctx, repos.Outbox, proposalEvent(p, audit.ProposalRevised, actor, "proposal revised", l.SellerID, now))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelProposal withdraws a pending proposal. Cancelling twice is a no-op.
func (s *ProposalServiceImpl) CancelProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error) {
	return s.close(ctx, id, func(p *proposal.Proposal, l *listing.Listing, now time.Time) (*audit.Event, error) {
		if p.BuyerID != actor {
			return nil, shared.Precondition(shared.ErrNotProposalBuyer, "actor %s did not submit proposal %s", actor, p.ID)
		}
		changed, err := p.Cancel(reason, now)
		if err != nil || !changed {
			return nil, err
		}
		return proposalEvent(p, audit.ProposalCancelled, actor, "proposal withdrawn by buyer", l.SellerID, now).
			With("reason", reason), nil
	})
}

// RejectProposal is the seller declining a proposal. Rejecting twice is a no-op.
func (s *ProposalServiceImpl) RejectProposal(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error) {
	return s.close(ctx, id, func(p *proposal.Proposal, l *listing.Listing, now time.Time) (*audit.Event, error) {
		if l.SellerID != actor {
			return nil, shared.Precondition(shared.ErrNotListingSeller, "actor %s is not the seller of listing %s", actor, l.ID)
		}
		changed, err := p.Reject(reason, now)
		if err != nil || !changed {
			return nil, err
		}
		return proposalEvent(p, audit.ProposalRejected, actor, "proposal rejected by seller", l.SellerID, now).
			With("reason", reason), nil
	})
}

// close locks listing then proposal and persists only when fn returns an event
func (s *ProposalServiceImpl) close(ctx context.Context, id uuid.UUID, fn func(p *proposal.Proposal, l *listing.Listing, now time.Time) (*audit.Event, error)) (*proposal.Proposal, error) {
	current, err := s.deps.Repos.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	var result *proposal.Proposal
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, current.ListingID)
		if err != nil {
			return err
		}
		p, err := repos.Proposals.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		event, err := fn(p, l, now)
		if err != nil {
			return err
		}
		result = p
		if event == nil {
			return nil
		}
		if err := repos.Proposals.Update(ctx, p); err != nil {
			return err
		}
		return emit(ctx, repos.Outbox, event)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AcceptProposal closes the negotiation and opens the transaction. The compliance
// gate runs before the lock is taken; the proposal version it saw must still hold.
func (s *ProposalServiceImpl) AcceptProposal(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error) {
	evaluated, err := s.deps.Repos.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.deps.Repos.Listings.GetByID(ctx, evaluated.ListingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != actor {
		return nil, shared.Precondition(shared.ErrNotListingSeller, "actor %s is not the seller of listing %s", actor, l.ID)
	}
	if evaluated.Status != proposal.StatusPending {
		return nil, shared.Precondition(shared.ErrNotPending, "proposal is %s", evaluated.Status)
	}

	now := s.deps.now()
	assessment := s.assess(ctx, evaluated, l.SellerID, now)

	var created *settlement.Transaction
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, evaluated.ListingID)
		if err != nil {
			return err
		}
		if !l.IsActiveAt(now) {
			return shared.Precondition(shared.ErrListingNotActive, "listing %s is %s", l.ID, l.EffectiveStatus(now))
		}

		pending, err := repos.Proposals.LockPendingByListing(ctx, l.ID)
		if err != nil {
			return err
		}
		var target *proposal.Proposal
		siblings := make([]*proposal.Proposal, 0, len(pending))
		for _, p := range pending {
			if p.ID == id {
				target = p
				continue
			}
			siblings = append(siblings, p)
		}
		if target == nil {
			return shared.Precondition(shared.ErrNotPending, "proposal %s is no longer pending", id)
		}
		if target.Version != evaluated.Version {
			return shared.ErrConcurrentModification{Entity: "proposal", ID: id}
		}
		if target.Value < l.Pricing.MinimumValue {
			return shared.Precondition(shared.ErrBelowMinimum, "offered %d is below the minimum %d", target.Value, l.Pricing.MinimumValue)
		}
		active, err := repos.Transactions.FindActiveByTitle(ctx, l.TitleID)
		if err != nil {
			return err
		}
		if active != nil {
			return shared.Precondition(shared.ErrActiveTransactionExists, "transaction %s is %s", active.ID, active.Status)
		}

		if err := target.Accept(now); err != nil {
			return err
		}
		if err := repos.Proposals.Update(ctx, target); err != nil {
			return err
		}
		events := []*audit.Event{proposalEvent(target, audit.ProposalAccepted, actor, "proposal accepted", l.SellerID, now)}

		rejected, err := rejectAll(ctx, repos, siblings, "another proposal was accepted", l.SellerID, now)
		if err != nil {
			return err
		}
		events = append(events, rejected...)

		if err := l.Finalize(now); err != nil {
			return err
		}
		if err := repos.Listings.Update(ctx, l); err != nil {
			return err
		}
		events = append(events, listingEvent(l, audit.ListingFinalized, actor, "listing finalized", now))

		tx, err := settlement.New(target, l.TitleID, l.SellerID, l.Pricing.OriginalValue, assessment, actor, now)
		if err != nil {
			return err
		}
		if err := repos.Transactions.Create(ctx, tx); err != nil {
			return err
		}
		events = append(events, transactionEvent(tx, audit.TransactionCreated, actor, "transaction opened, awaiting payment", now))
		if tx.ComplianceHold {
			events = append(events, transactionEvent(tx, audit.ComplianceHoldSet, shared.SystemActor, "held for compliance review", now).
				With("reason", tx.ComplianceReason))
		}
		created = tx
		return emit(ctx, repos.Outbox, events...)
	})
	if err != nil {
		return nil, err
	}

	if s.deps.Velocity != nil {
		for _, party := range []uuid.UUID{created.BuyerID, created.SellerID} {
			if err := s.deps.Velocity.Record(ctx, party, created.Value, now); err != nil {
				s.logger.Warn("Failed to record velocity", "party_id", party.String(), "error", err)
			}
		}
	}

	s.logger.Info("Proposal accepted",
		"proposal_id", id.String(),
		"transaction_id", created.ID.String(),
		"compliance_hold", created.ComplianceHold,
	)
	return created, nil
}

// assess runs the compliance gate. Missing velocity data is reported as zero activity.
func (s *ProposalServiceImpl) assess(ctx context.Context, p *proposal.Proposal, seller uuid.UUID, now time.Time) compliance.Assessment {
	var history []compliance.PartyHistory
	if s.deps.Velocity != nil {
		for _, party := range []struct {
			id   uuid.UUID
			role string
		}{{p.BuyerID, "buyer"}, {seller, "seller"}} {
			h, err := s.deps.Velocity.History(ctx, party.id, party.role, now)
			if err != nil {
				s.logger.Warn("Velocity history unavailable", "party_id", party.id.String(), "error", err)
				h = compliance.PartyHistory{PartyID: party.id, Role: party.role}
			}
			history = append(history, h)
		}
	}
	return s.deps.Gate.Evaluate(p.Value, history)
}

// ListByListing returns every proposal of a listing
func (s *ProposalServiceImpl) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*proposal.Proposal, error) {
	if _, err := s.deps.Repos.Listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}
	return s.deps.Repos.Proposals.ListByListing(ctx, listingID)
}

// ExpireProposals closes pending proposals whose expiry passed
func (s *ProposalServiceImpl) ExpireProposals(ctx context.Context) (int, error) {
	now := s.deps.now()
	candidates, err := s.deps.Repos.Proposals.ListExpirable(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range candidates {
		changed := false
		err := s.deps.inTx(ctx, func(repos Repositories) error {
			l, err := repos.Listings.LockForUpdate(ctx, c.ListingID)
			if err != nil {
				return err
			}
			p, err := repos.Proposals.LockForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if !p.Expire(now) {
				return nil
			}
			if err := repos.Proposals.Update(ctx, p); err != nil {
				return err
			}
			changed = true
			return emit(ctx, repos.Outbox, proposalEvent(p, audit.ProposalExpired, shared.SystemActor, "proposal expired", l.SellerID, now))
		})
		if err != nil {
			s.logger.Error("Failed to expire proposal", "proposal_id", c.ID.String(), "error", err)
			return expired, err
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}
