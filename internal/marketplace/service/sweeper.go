package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SweepResult counts what one sweep pass changed
type SweepResult struct {
	Listings  int
	Proposals int
	Titles    int
}

// Sweeper periodically expires lapsed listings, proposals and matured titles
type Sweeper struct {
	titles    TitleService
	listings  ListingService
	proposals ProposalService
	interval  time.Duration
	logger    *slog.Logger
}

func NewSweeper(titles TitleService, listings ListingService, proposals ProposalService, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		titles:    titles,
		listings:  listings,
		proposals: proposals,
		interval:  interval,
		logger:    logger.With("component", "sweeper"),
	}
}

// Start runs a pass on every tick until ctx is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting expiry sweeper", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce expires listings first so their proposals are rejected rather than expired,
// then the remaining proposals, then matured titles. Each step runs even if an earlier one failed.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var errs []error

	n, err := s.listings.ExpireListings(ctx)
	res.Listings = n
	errs = append(errs, err)

	n, err = s.proposals.ExpireProposals(ctx)
	res.Proposals = n
	errs = append(errs, err)

	n, err = s.titles.ExpireMaturedTitles(ctx)
	res.Titles = n
	errs = append(errs, err)

	if res.Listings+res.Proposals+res.Titles > 0 {
		s.logger.Info("Expiry sweep applied",
			"listings", res.Listings,
			"proposals", res.Proposals,
			"titles", res.Titles,
		)
	}
	return res, errors.Join(errs...)
}
