package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
)

// ListingServiceImpl implements the ListingService interface
type ListingServiceImpl struct {
	deps   *Dependencies
	logger *slog.Logger
}

// NewListingService creates a new listing service
func NewListingService(deps *Dependencies) ListingService {
	return &ListingServiceImpl{
		deps:   deps,
		logger: deps.Logger.With("component", "listing_service"),
	}
}

func listingEvent(l *listing.Listing, typ audit.EventType, actor uuid.UUID, summary string, now time.Time) *audit.Event {
	return audit.NewEvent(audit.AggregateListing, l.ID, typ, actor, summary, now, l.SellerID).
		With("title_id", l.TitleID.String()).
		With("status", string(l.Status))
}

// CreateListing offers an eligible title on the marketplace
func (s *ListingServiceImpl) CreateListing(ctx context.Context, titleID, seller uuid.UUID, params listing.NewListingParams) (*listing.Listing, error) {
	now := s.deps.now()
	var created *listing.Listing

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		t, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if t.OwnerID != seller {
			return shared.Precondition(shared.ErrNotTitleOwner, "actor %s does not own title %s", seller, t.Number)
		}

		open, err := repos.Listings.FindOpenByTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if open != nil {
			return shared.Precondition(shared.ErrExistingActiveListing, "title %s is already offered by listing %s", t.Number, open.ID)
		}
		active, err := repos.Transactions.FindActiveByTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if active != nil {
			return shared.Precondition(shared.ErrExistingActiveListing, "title %s has transaction %s in progress", t.Number, active.ID)
		}
		if !t.Status.Eligible() {
			return shared.Precondition(shared.ErrTitleNotEligible, "title %s is %s", t.Number, t.Status)
		}

		l, err := listing.New(t, params, now)
		if err != nil {
			return err
		}
		if err := repos.Listings.Create(ctx, l); err != nil {
			return err
		}
		if err := t.MarkListed(l.ID, seller, now); err != nil {
			return err
		}
		if err := repos.Titles.Update(ctx, t); err != nil {
			return err
		}
		created = l

		return emit(ctx, repos.Outbox,
			listingEvent(l, audit.ListingCreated, seller, "title "+t.Number+" listed", now).
				With("modality", string(l.Modality)).
				With("suggested_value", fmt.Sprint(l.Pricing.SuggestedValue)),
		)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing created",
		"listing_id", created.ID.String(),
		"title_id", titleID.String(),
		"modality", string(created.Modality),
	)
	return created, nil
}

// GetListing returns a listing as readers see it, reporting lapsed listings as expired
func (s *ListingServiceImpl) GetListing(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	l, err := s.deps.Repos.Listings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := *l
	view.Status = l.EffectiveStatus(s.deps.now())
	return &view, nil
}

func (s *ListingServiceImpl) mutateBySeller(ctx context.Context, id, actor uuid.UUID, fn func(l *listing.Listing, now time.Time) (*audit.Event, error)) (*listing.Listing, error) {
	now := s.deps.now()
	var updated *listing.Listing

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if l.SellerID != actor {
			return shared.Precondition(shared.ErrNotListingSeller, "actor %s is not the seller of listing %s", actor, l.ID)
		}
		event, err := fn(l, now)
		if err != nil {
			return err
		}
		if err := repos.Listings.Update(ctx, l); err != nil {
			return err
		}
		updated = l
		return emit(ctx, repos.Outbox, event)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PauseListing hides an active listing from buyers
func (s *ListingServiceImpl) PauseListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error) {
	return s.mutateBySeller(ctx, id, actor, func(l *listing.Listing, now time.Time) (*audit.Event, error) {
		if err := l.Pause(now); err != nil {
			return nil, err
		}
		return listingEvent(l, audit.ListingPaused, actor, "listing paused", now), nil
	})
}

// ResumeListing reactivates a paused listing
func (s *ListingServiceImpl) ResumeListing(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error) {
	return s.mutateBySeller(ctx, id, actor, func(l *listing.Listing, now time.Time) (*audit.Event, error) {
		if err := l.Resume(now); err != nil {
			return nil, err
		}
		return listingEvent(l, audit.ListingResumed, actor, "listing resumed", now), nil
	})
}

// SearchListings filters, sorts and pages listings without changing them
func (s *ListingServiceImpl) SearchListings(ctx context.Context, f listing.Filter) ([]*listing.Listing, error) {
	if !f.SortBy.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown sort field %q", f.SortBy)
	}
	now := s.deps.now()
	page, err := s.deps.Repos.Listings.Search(ctx, f, now)
	if err != nil {
		return nil, err
	}
	views := make([]*listing.Listing, 0, len(page))
	for _, l := range page {
		views = append(views, l.View(now))
	}
	return views, nil
}

// ExpireListings closes every lapsed listing, rejecting its pending proposals
// and returning its title to the eligible pool
func (s *ListingServiceImpl) ExpireListings(ctx context.Context) (int, error) {
	now := s.deps.now()
	candidates, err := s.deps.Repos.Listings.ListExpirable(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range candidates {
		changed, err := s.expireListing(ctx, c.ID, now)
		if err != nil {
			s.logger.Error("Failed to expire listing", "listing_id", c.ID.String(), "error", err)
			return expired, err
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		s.logger.Info("Expired listings", "count", expired)
	}
	return expired, nil
}

func (s *ListingServiceImpl) expireListing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	changed := false
	err := s.deps.inTx(ctx, func(repos Repositories) error {
		l, err := repos.Listings.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if l.Status.Terminal() || !l.ExpiresAt.Before(now) {
			return nil
		}
		pending, err := repos.Proposals.LockPendingByListing(ctx, l.ID)
		if err != nil {
			return err
		}

		if err := l.Expire(now); err != nil {
			return err
		}
		if err := repos.Listings.Update(ctx, l); err != nil {
			return err
		}
		events := []*audit.Event{listingEvent(l, audit.ListingExpired, shared.SystemActor, "listing expired", now)}

		rejected, err := rejectAll(ctx, repos, pending, "listing expired", l.SellerID, now)
		if err != nil {
			return err
		}
		events = append(events, rejected...)

		t, err := repos.Titles.LockForUpdate(ctx, l.TitleID)
		if err != nil {
			return err
		}
		if t.Status == title.StatusListed {
			if err := t.ReturnToEligible(shared.SystemActor, "listing expired", now); err != nil {
				return err
			}
			if err := repos.Titles.Update(ctx, t); err != nil {
				return err
			}
		}

		changed = true
		return emit(ctx, repos.Outbox, events...)
	})
	return changed, err
}
