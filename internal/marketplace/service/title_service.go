package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/platform/collaborators"
	"github.com/google/uuid"
)

// TitleServiceImpl implements the TitleService interface
type TitleServiceImpl struct {
	deps   *Dependencies
	logger *slog.Logger
}

// NewTitleService creates a new credit title service
func NewTitleService(deps *Dependencies) TitleService {
	return &TitleServiceImpl{
		deps:   deps,
		logger: deps.Logger.With("component", "title_service"),
	}
}

func titleEvent(t *title.Title, typ audit.EventType, actor uuid.UUID, summary string, now time.Time) *audit.Event {
	return audit.NewEvent(audit.AggregateTitle, t.ID, typ, actor, summary, now, t.OwnerID).
		With("number", t.Number).
		With("status", string(t.Status))
}

// RegisterTitle creates a draft title with the next free number
func (s *TitleServiceImpl) RegisterTitle(ctx context.Context, params title.NewTitleParams) (*title.Title, error) {
	now := s.deps.now()
	var created *title.Title

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		number, err := repos.Titles.NextNumber(ctx, now.Year())
		if err != nil {
			return err
		}
		params.Number = number

		t, err := title.New(params, now)
		if err != nil {
			return err
		}
		if err := repos.Titles.Create(ctx, t); err != nil {
			return err
		}
		created = t
		return emit(ctx, repos.Outbox, titleEvent(t, audit.TitleRegistered, t.OwnerID, "title "+t.Number+" registered", now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credit title registered", "title_id", created.ID.String(), "number", created.Number)
	return created, nil
}

// GetTitle retrieves a title by its ID
func (s *TitleServiceImpl) GetTitle(ctx context.Context, id uuid.UUID) (*title.Title, error) {
	return s.deps.Repos.Titles.GetByID(ctx, id)
}

// mutateOwned locks the title, checks the actor owns it and persists whatever fn changed
func (s *TitleServiceImpl) mutateOwned(ctx context.Context, titleID, actor uuid.UUID, fn func(t *title.Title, now time.Time) (*audit.Event, error)) (*title.Title, error) {
	now := s.deps.now()
	var updated *title.Title

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		t, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if t.OwnerID != actor {
			return shared.Precondition(shared.ErrNotTitleOwner, "actor %s does not own title %s", actor, t.Number)
		}
		event, err := fn(t, now)
		if err != nil {
			return err
		}
		if err := repos.Titles.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return emit(ctx, repos.Outbox, event)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AttachDocument adds a document to a draft title
func (s *TitleServiceImpl) AttachDocument(ctx context.Context, titleID, actor uuid.UUID, doc title.Document) (*title.Title, error) {
	return s.mutateOwned(ctx, titleID, actor, func(t *title.Title, now time.Time) (*audit.Event, error) {
		d, err := t.AttachDocument(doc, actor, now)
		if err != nil {
			return nil, err
		}
		return titleEvent(t, audit.TitleDocumentAttached, actor, "document "+d.Name+" attached", now).
			With("document_id", d.ID.String()), nil
	})
}

// SubmitForValidation moves a draft to validating
func (s *TitleServiceImpl) SubmitForValidation(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error) {
	return s.mutateOwned(ctx, titleID, actor, func(t *title.Title, now time.Time) (*audit.Event, error) {
		if err := t.SubmitForValidation(actor, now); err != nil {
			return nil, err
		}
		return titleEvent(t, audit.TitleSubmitted, actor, "title "+t.Number+" submitted for validation", now), nil
	})
}

// RunValidation calls the validator with no lock held and records its verdict
func (s *TitleServiceImpl) RunValidation(ctx context.Context, titleID uuid.UUID, timeout time.Duration) (*title.Title, error) {
	if timeout <= 0 {
		timeout = s.deps.Config.ValidationTimeout
	}

	t, err := s.deps.Repos.Titles.GetByID(ctx, titleID)
	if err != nil {
		return nil, err
	}
	if t.Status != title.StatusValidating {
		return nil, shared.Precondition(shared.ErrInvalidStateTransition, "title %s is %s, expected validating", t.Number, t.Status)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result collaborators.ValidationResult
	err = s.deps.retry().do(vctx, s.logger, "validate title documents", func(ctx context.Context) error {
		var verr error
		result, verr = s.deps.Validator.Validate(ctx, t.Documents, t.Type)
		return verr
	})
	if err != nil {
		if errors.Is(err, shared.ErrCollaboratorTimeout) {
			s.logger.Warn("Validation timed out, title stays validating", "title_id", titleID.String(), "timeout", timeout.String())
		}
		return nil, err
	}

	now := s.deps.now()
	var updated *title.Title
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		current, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if current.Status != title.StatusValidating {
			return shared.Precondition(shared.ErrInvalidStateTransition,
				"title %s moved to %s while the validator was running", current.Number, current.Status)
		}

		outcome := title.ValidationOutcome{
			Approved:      result.Approved,
			Confidence:    result.Confidence,
			Justification: result.Justification,
		}
		if err := current.ApplyValidation(outcome, result.Details, now); err != nil {
			return err
		}
		if err := repos.Titles.Update(ctx, current); err != nil {
			return err
		}
		updated = current

		typ, summary := audit.TitleValidated, "title "+current.Number+" validated"
		if !result.Approved {
			typ, summary = audit.TitleRejected, "title "+current.Number+" rejected by validation"
		}
		return emit(ctx, repos.Outbox, titleEvent(current, typ, shared.SystemActor, summary, now).
			With("confidence", fmt.Sprintf("%.4f", result.Confidence)).
			With("justification", result.Justification))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Validation recorded",
		"title_id", titleID.String(),
		"approved", result.Approved,
		"confidence", result.Confidence,
	)
	return updated, nil
}

// Tokenize mints a validated title. The mint runs between two short transactions.
func (s *TitleServiceImpl) Tokenize(ctx context.Context, titleID, actor uuid.UUID) (*title.Title, error) {
	t, err := s.mutateOwned(ctx, titleID, actor, func(t *title.Title, now time.Time) (*audit.Event, error) {
		if err := t.BeginTokenization(actor, now); err != nil {
			return nil, err
		}
		return titleEvent(t, audit.TitleTokenizing, actor, "tokenization of "+t.Number+" started", now), nil
	})
	if err != nil {
		return nil, err
	}

	var minted collaborators.MintResult
	mintErr := s.deps.retry().do(ctx, s.logger, "mint title token", func(ctx context.Context) error {
		var merr error
		minted, merr = s.deps.Tokenizer.Mint(ctx, t)
		return merr
	})

	now := s.deps.now()
	var updated *title.Title
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		current, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if current.Status != title.StatusTokenizing {
			return shared.Precondition(shared.ErrInvalidStateTransition,
				"title %s moved to %s while minting", current.Number, current.Status)
		}

		var event *audit.Event
		if mintErr != nil {
			if err := current.FailTokenization(mintErr.Error(), now); err != nil {
				return err
			}
			event = titleEvent(current, audit.TitleTokenizationFailed, shared.SystemActor, "tokenization of "+current.Number+" failed", now).
				With("reason", mintErr.Error())
		} else {
			token := title.TokenRecord{TokenID: minted.TokenID, ContractRef: minted.ContractRef, TxHash: minted.TxHash}
			if err := current.CompleteTokenization(token, now); err != nil {
				return err
			}
			event = titleEvent(current, audit.TitleTokenized, shared.SystemActor, "title "+current.Number+" tokenized", now).
				With("token_id", minted.TokenID).
				With("tx_hash", minted.TxHash)
		}
		if err := repos.Titles.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return emit(ctx, repos.Outbox, event)
	})
	if err != nil {
		return nil, err
	}
	if mintErr != nil {
		return nil, mintErr
	}

	s.logger.Info("Credit title tokenized", "title_id", titleID.String(), "token_id", minted.TokenID)
	return updated, nil
}

// CancelTitle cancels a non-terminal title. An open listing is expired and its
// pending proposals rejected in the same transaction.
func (s *TitleServiceImpl) CancelTitle(ctx context.Context, titleID, actor uuid.UUID, reason string) (*title.Title, error) {
	open, err := s.deps.Repos.Listings.FindOpenByTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	var updated *title.Title
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		var events []*audit.Event

		if open != nil {
			l, err := repos.Listings.LockForUpdate(ctx, open.ID)
			if err != nil {
				return err
			}
			pending, err := repos.Proposals.LockPendingByListing(ctx, l.ID)
			if err != nil {
				return err
			}
			if !l.Status.Terminal() {
				if err := l.Expire(now); err != nil {
					return err
				}
				if err := repos.Listings.Update(ctx, l); err != nil {
					return err
				}
				events = append(events, listingEvent(l, audit.ListingExpired, actor, "listing closed because its title was cancelled", now))
			}
			rejected, err := rejectAll(ctx, repos, pending, "title cancelled", l.SellerID, now)
			if err != nil {
				return err
			}
			events = append(events, rejected...)
		}

		t, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if t.OwnerID != actor {
			return shared.Precondition(shared.ErrNotTitleOwner, "actor %s does not own title %s", actor, t.Number)
		}
		// listings are only opened under the title lock, so this read is final
		current, err := repos.Listings.FindOpenByTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if current != nil && (open == nil || current.ID != open.ID) {
			return shared.ErrConcurrentModification{Entity: "listing", ID: current.ID}
		}
		active, err := repos.Transactions.FindActiveByTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if active != nil {
			return shared.Precondition(shared.ErrActiveTransactionExists, "transaction %s is %s", active.ID, active.Status)
		}
		if err := t.Cancel(actor, reason, now); err != nil {
			return err
		}
		if err := repos.Titles.Update(ctx, t); err != nil {
			return err
		}
		updated = t

		events = append(events, titleEvent(t, audit.TitleCancelled, actor, "title "+t.Number+" cancelled", now).With("reason", reason))
		return emit(ctx, repos.Outbox, events...)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Credit title cancelled", "title_id", titleID.String(), "actor", actor.String())
	return updated, nil
}

// ReverseTitle is the administrative reversal of a closed title within the reversal window
func (s *TitleServiceImpl) ReverseTitle(ctx context.Context, titleID, admin uuid.UUID, reason string) (*title.Title, error) {
	now := s.deps.now()
	var updated *title.Title

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		t, err := repos.Titles.LockForUpdate(ctx, titleID)
		if err != nil {
			return err
		}
		if err := t.Reverse(admin, reason, s.deps.Config.ReversalWindow, now); err != nil {
			return err
		}
		if err := repos.Titles.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return emit(ctx, repos.Outbox, titleEvent(t, audit.TitleReversed, admin, "title "+t.Number+" administratively reversed", now).
			With("reason", reason))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Credit title reversed", "title_id", titleID.String(), "admin", admin.String(), "reason", reason)
	return updated, nil
}

// ExpireMaturedTitles moves validated titles past maturity to expired
func (s *TitleServiceImpl) ExpireMaturedTitles(ctx context.Context) (int, error) {
	now := s.deps.now()
	candidates, err := s.deps.Repos.Titles.ListMaturedValidated(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range candidates {
		changed := false
		err := s.deps.inTx(ctx, func(repos Repositories) error {
			t, err := repos.Titles.LockForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if !t.ExpireIfMatured(now) {
				return nil
			}
			if err := repos.Titles.Update(ctx, t); err != nil {
				return err
			}
			changed = true
			return emit(ctx, repos.Outbox, titleEvent(t, audit.TitleExpired, shared.SystemActor, "title "+t.Number+" matured without sale", now))
		})
		if err != nil {
			s.logger.Error("Failed to expire matured title", "title_id", c.ID.String(), "error", err)
			return expired, err
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

// rejectAll rejects every still pending proposal and returns their events
func rejectAll(ctx context.Context, repos Repositories, pending []*proposal.Proposal, reason string, seller uuid.UUID, now time.Time) ([]*audit.Event, error) {
	var events []*audit.Event
	for _, p := range pending {
		changed, err := p.Reject(reason, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		if err := repos.Proposals.Update(ctx, p); err != nil {
			return nil, err
		}
		events = append(events, proposalEvent(p, audit.ProposalRejected, shared.SystemActor, "proposal rejected: "+reason, seller, now))
	}
	return events, nil
}
