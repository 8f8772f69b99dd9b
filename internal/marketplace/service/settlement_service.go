package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/google/uuid"
)

// walletRefPrefix marks payment references of transactions paid from the buyer's wallet
const walletRefPrefix = "carteira-"

// SettlementServiceImpl implements the SettlementService interface
type SettlementServiceImpl struct {
	deps   *Dependencies
	logger *slog.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(deps *Dependencies) SettlementService {
	return &SettlementServiceImpl{
		deps:   deps,
		logger: deps.Logger.With("component", "settlement_service"),
	}
}

func transactionEvent(tx *settlement.Transaction, typ audit.EventType, actor uuid.UUID, summary string, now time.Time) *audit.Event {
	return audit.NewEvent(audit.AggregateTransaction, tx.ID, typ, actor, summary, now, tx.BuyerID, tx.SellerID).
		With("title_id", tx.TitleID.String()).
		With("value", fmt.Sprint(tx.Value)).
		With("face_value", fmt.Sprint(tx.FaceValue)).
		With("status", string(tx.Status))
}

// GetTransaction retrieves a transaction by its ID
func (s *SettlementServiceImpl) GetTransaction(ctx context.Context, id uuid.UUID) (*settlement.Transaction, error) {
	return s.deps.Repos.Transactions.GetByID(ctx, id)
}

// RequestPayment initiates the buyer's payment with the gateway. A transaction that
// already has a reference is returned unchanged.
func (s *SettlementServiceImpl) RequestPayment(ctx context.Context, id, actor uuid.UUID, method shared.PaymentMethod, details map[string]string) (*settlement.Transaction, error) {
	if !method.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown payment method %q", method)
	}
	tx, err := s.deps.Repos.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.BuyerID != actor {
		return nil, shared.Precondition(shared.ErrNotTransactionParty, "only the buyer can request payment")
	}
	if tx.PaymentReference != "" {
		return tx, nil
	}
	if tx.Status != settlement.StatusAwaitingPayment {
		return nil, shared.Precondition(shared.ErrInvalidStateTransition, "transaction is %s, expected awaiting_payment", tx.Status)
	}

	ref := walletRefPrefix + tx.ID.String()
	if method != shared.PaymentMethodWallet {
		err = s.deps.retry().do(ctx, s.logger, "initiate payment", func(ctx context.Context) error {
			var ierr error
			ref, ierr = s.deps.Gateway.Initiate(ctx, tx.Value, method)
			return ierr
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.deps.now()
	var updated *settlement.Transaction
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		current, err := repos.Transactions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.PaymentReference != "" {
			updated = current
			return nil
		}
		if err := current.SetPaymentReference(method, details, ref, now); err != nil {
			return err
		}
		if err := repos.Transactions.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return emit(ctx, repos.Outbox, transactionEvent(current, audit.PaymentRequested, actor, "payment requested via "+string(method), now).
			With("payment_reference", ref))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment requested",
		"transaction_id", id.String(),
		"method", string(method),
		"payment_reference", updated.PaymentReference,
	)
	return updated, nil
}

// ConfirmPayment checks the payment with the gateway and applies its verdict.
// Repeating a confirmation with the same proof is a no-op.
func (s *SettlementServiceImpl) ConfirmPayment(ctx context.Context, id, actor uuid.UUID, proof string) (*settlement.Transaction, error) {
	if proof == "" {
		return nil, shared.Precondition(shared.ErrInvalidInput, "payment proof reference is required")
	}
	tx, err := s.deps.Repos.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.IsParty(actor) {
		return nil, shared.Precondition(shared.ErrNotTransactionParty, "actor %s is not a party to transaction %s", actor, tx.ID)
	}
	if tx.PaymentProof != "" {
		if tx.PaymentProof == proof {
			return tx, nil
		}
		return nil, shared.Precondition(shared.ErrPaymentProofMismatch, "transaction already confirmed with proof %s", tx.PaymentProof)
	}
	if tx.PaymentReference == "" {
		return nil, shared.Precondition(shared.ErrPaymentNotRequested, "request payment before confirming transaction %s", tx.ID)
	}

	status := shared.PaymentStatusConfirmed
	if tx.PaymentMethod != shared.PaymentMethodWallet {
		err = s.deps.retry().do(ctx, s.logger, "confirm payment", func(ctx context.Context) error {
			var cerr error
			status, cerr = s.deps.Gateway.Confirm(ctx, tx.PaymentReference)
			return cerr
		})
		if err != nil {
			return nil, err
		}
	}
	if status == shared.PaymentStatusPending {
		return nil, shared.Precondition(shared.ErrNotPaymentConfirmed, "gateway reports payment %s as pending", tx.PaymentReference)
	}
	return s.applyPaymentStatus(ctx, id, actor, status, proof)
}

// ApplyPaymentCallback applies a gateway callback for a transaction payment
func (s *SettlementServiceImpl) ApplyPaymentCallback(ctx context.Context, cb *shared.PaymentCallback) (*settlement.Transaction, error) {
	var tx *settlement.Transaction
	var err error
	if cb.TransactionID != uuid.Nil {
		tx, err = s.deps.Repos.Transactions.GetByID(ctx, cb.TransactionID)
	} else {
		tx, err = s.deps.Repos.Transactions.GetByPaymentReference(ctx, cb.PaymentRef)
	}
	if err != nil {
		return nil, err
	}
	if cb.Status == shared.PaymentStatusPending {
		return tx, nil
	}

	proof := cb.ProofRef
	if proof == "" {
		proof = cb.PaymentRef
	}
	if tx.PaymentProof != "" && tx.PaymentProof != proof {
		s.logger.Warn("Callback proof differs from confirmed proof, ignoring",
			"transaction_id", tx.ID.String(),
			"confirmed_proof", tx.PaymentProof,
			"callback_proof", proof,
		)
		return tx, nil
	}
	return s.applyPaymentStatus(ctx, tx.ID, shared.SystemActor, cb.Status, proof)
}

// applyPaymentStatus records the gateway verdict under lock. Funds paid from outside the
// platform are booked into the buyer's wallet as a completed deposit on confirmation.
func (s *SettlementServiceImpl) applyPaymentStatus(ctx context.Context, id, actor uuid.UUID, status shared.PaymentStatus, proof string) (*settlement.Transaction, error) {
	now := s.deps.now()
	var updated *settlement.Transaction

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		tx, err := repos.Transactions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated = tx

		if status != shared.PaymentStatusConfirmed {
			if tx.Status != settlement.StatusAwaitingPayment {
				return nil
			}
			if err := tx.FailPayment("gateway reported payment "+string(status), now); err != nil {
				return err
			}
			if err := repos.Transactions.Update(ctx, tx); err != nil {
				return err
			}
			if err := s.releaseTitle(ctx, repos, tx.TitleID, "payment "+string(status), now); err != nil {
				return err
			}
			return emit(ctx, repos.Outbox, transactionEvent(tx, audit.PaymentFailed, actor, "payment "+string(status), now))
		}

		changed, err := tx.ConfirmPayment(proof, actor, now)
		if err != nil || !changed {
			return err
		}
		if err := repos.Transactions.Update(ctx, tx); err != nil {
			return err
		}

		if tx.PaymentMethod == shared.PaymentMethodWallet {
			if err := s.checkBuyerFunds(ctx, repos, tx); err != nil {
				return err
			}
		} else if err := s.bookInboundFunds(ctx, repos, tx, proof, now); err != nil {
			return err
		}
		return emit(ctx, repos.Outbox, transactionEvent(tx, audit.PaymentConfirmed, actor, "payment confirmed", now).
			With("payment_proof", proof))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment status applied",
		"transaction_id", id.String(),
		"status", string(status),
		"transaction_status", string(updated.Status),
	)
	return updated, nil
}

func (s *SettlementServiceImpl) checkBuyerFunds(ctx context.Context, repos Repositories, tx *settlement.Transaction) error {
	acc, err := repos.Accounts.GetByOwnerID(ctx, tx.BuyerID)
	if err != nil {
		return err
	}
	if acc == nil || acc.Available < tx.Value {
		return shared.Precondition(shared.ErrInsufficientAvailable, "buyer wallet cannot cover %d", tx.Value)
	}
	return nil
}

func (s *SettlementServiceImpl) bookInboundFunds(ctx context.Context, repos Repositories, tx *settlement.Transaction, proof string, now time.Time) error {
	acc, err := ensureAccount(ctx, repos, tx.BuyerID, wallet.KindUser, now)
	if err != nil {
		return err
	}
	acc, err = repos.Accounts.LockForUpdate(ctx, acc.ID)
	if err != nil {
		return err
	}
	wtx, err := acc.Credit(tx.Value, wallet.TypeDeposit, tx.ID.String(), now)
	if err != nil {
		return err
	}
	wtx.Method = tx.PaymentMethod
	wtx.ExternalRef = proof
	if err := acc.CheckInvariants(); err != nil {
		return err
	}
	if err := repos.Accounts.Update(ctx, acc); err != nil {
		return err
	}
	return repos.WalletTxs.Create(ctx, wtx)
}

// releaseTitle returns a listed title to its eligible status
func (s *SettlementServiceImpl) releaseTitle(ctx context.Context, repos Repositories, titleID uuid.UUID, reason string, now time.Time) error {
	t, err := repos.Titles.LockForUpdate(ctx, titleID)
	if err != nil {
		return err
	}
	if t.Status != title.StatusListed {
		return nil
	}
	if err := t.ReturnToEligible(shared.SystemActor, reason, now); err != nil {
		return err
	}
	return repos.Titles.Update(ctx, t)
}

// ClearComplianceHold records a reviewer's sign-off
func (s *SettlementServiceImpl) ClearComplianceHold(ctx context.Context, id, reviewer uuid.UUID, note string) (*settlement.Transaction, error) {
	return s.mutate(ctx, id, func(repos Repositories, tx *settlement.Transaction, now time.Time) ([]*audit.Event, error) {
		if err := tx.ClearHold(reviewer, note, now); err != nil {
			return nil, err
		}
		return []*audit.Event{transactionEvent(tx, audit.ComplianceHoldClear, reviewer, "compliance hold cleared", now).With("note", note)}, nil
	})
}

// CancelTransaction abandons a transaction awaiting payment and frees its title
func (s *SettlementServiceImpl) CancelTransaction(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error) {
	return s.mutate(ctx, id, func(repos Repositories, tx *settlement.Transaction, now time.Time) ([]*audit.Event, error) {
		if err := tx.Cancel(actor, reason, now); err != nil {
			return nil, err
		}
		if err := s.releaseTitle(ctx, repos, tx.TitleID, "transaction cancelled", now); err != nil {
			return nil, err
		}
		return []*audit.Event{transactionEvent(tx, audit.TransactionCancelled, actor, "transaction cancelled", now).With("reason", reason)}, nil
	})
}

// OpenDispute contests a confirmed payment
func (s *SettlementServiceImpl) OpenDispute(ctx context.Context, id, actor uuid.UUID, reason string) (*settlement.Transaction, error) {
	return s.mutate(ctx, id, func(_ Repositories, tx *settlement.Transaction, now time.Time) ([]*audit.Event, error) {
		if err := tx.OpenDispute(actor, reason, now); err != nil {
			return nil, err
		}
		return []*audit.Event{transactionEvent(tx, audit.DisputeOpened, actor, "dispute opened", now).With("reason", reason)}, nil
	})
}

// ResolveDispute either settles or cancels a disputed transaction. Cancelled disputes
// leave the buyer's funds in their wallet.
func (s *SettlementServiceImpl) ResolveDispute(ctx context.Context, id, admin uuid.UUID, outcome settlement.DisputeOutcome, note string) (*settlement.Transaction, error) {
	switch outcome {
	case settlement.OutcomeSettle:
		return s.settle(ctx, id, admin, true, "dispute resolved: "+note)
	case settlement.OutcomeCancel:
		return s.mutate(ctx, id, func(repos Repositories, tx *settlement.Transaction, now time.Time) ([]*audit.Event, error) {
			if err := tx.CancelDispute(admin, note, now); err != nil {
				return nil, err
			}
			if err := s.releaseTitle(ctx, repos, tx.TitleID, "dispute cancelled", now); err != nil {
				return nil, err
			}
			return []*audit.Event{transactionEvent(tx, audit.TransactionCancelled, admin, "dispute resolved by cancellation", now).With("note", note)}, nil
		})
	}
	return nil, shared.Precondition(shared.ErrInvalidInput, "unknown dispute outcome %q", outcome)
}

// Settle moves the money and the title in one database transaction
func (s *SettlementServiceImpl) Settle(ctx context.Context, id, actor uuid.UUID) (*settlement.Transaction, error) {
	return s.settle(ctx, id, actor, false, "settled")
}

func (s *SettlementServiceImpl) settle(ctx context.Context, id, actor uuid.UUID, fromDispute bool, note string) (*settlement.Transaction, error) {
	now := s.deps.now()
	var settled *settlement.Transaction
	var split wallet.Split

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		tx, err := repos.Transactions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.CheckSettleable(fromDispute); err != nil {
			return err
		}

		t, err := repos.Titles.LockForUpdate(ctx, tx.TitleID)
		if err != nil {
			return err
		}
		if err := t.ApplySale(tx.FaceValue, tx.BuyerID, tx.Terms.Purpose == proposal.PurposeCompensation, tx.ID, now); err != nil {
			return err
		}
		if err := t.CheckInvariants(); err != nil {
			return err
		}

		split, err = s.reconcile(ctx, repos, tx, now)
		if err != nil {
			return err
		}

		if err := repos.Titles.Update(ctx, t); err != nil {
			return err
		}
		if err := tx.MarkSettled(split.PlatformFee, actor, note, now); err != nil {
			return err
		}
		if err := repos.Transactions.Update(ctx, tx); err != nil {
			return err
		}
		settled = tx

		saleSummary := "title " + t.Number + " sold"
		if t.Status == title.StatusCompensated {
			saleSummary = "title " + t.Number + " compensated"
		} else if t.Status.Eligible() {
			saleSummary = "title " + t.Number + " partially sold"
		}
		return emit(ctx, repos.Outbox,
			transactionEvent(tx, audit.TransactionSettled, actor, "transaction settled", now).
				With("platform_fee", fmt.Sprint(split.PlatformFee)).
				With("seller_credit", fmt.Sprint(split.SellerCredit)),
			audit.NewEvent(audit.AggregateTitle, t.ID, audit.TitleSold, shared.SystemActor, saleSummary, now, tx.SellerID, tx.BuyerID).
				With("number", t.Number).
				With("status", string(t.Status)).
				With("available_value", fmt.Sprint(t.AvailableValue)),
		)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction settled",
		"transaction_id", id.String(),
		"value", settled.Value,
		"platform_fee", split.PlatformFee,
	)
	return settled, nil
}

// reconcile debits the buyer, credits the seller net of fee and credits the platform.
// Accounts are locked in id order on the caller's transaction.
func (s *SettlementServiceImpl) reconcile(ctx context.Context, repos Repositories, tx *settlement.Transaction, now time.Time) (wallet.Split, error) {
	split, err := wallet.SplitSettlement(tx.Value, s.deps.Config.FeeRate)
	if err != nil {
		return wallet.Split{}, err
	}

	buyer, err := repos.Accounts.GetByOwnerID(ctx, tx.BuyerID)
	if err != nil {
		return wallet.Split{}, err
	}
	if buyer == nil {
		return wallet.Split{}, shared.Precondition(shared.ErrInsufficientAvailable, "buyer %s has no wallet", tx.BuyerID)
	}
	seller, err := ensureAccount(ctx, repos, tx.SellerID, wallet.KindUser, now)
	if err != nil {
		return wallet.Split{}, err
	}
	platform, err := repos.Accounts.GetByOwnerID(ctx, s.deps.Config.PlatformOwnerID)
	if err != nil {
		return wallet.Split{}, err
	}
	if platform == nil {
		return wallet.Split{}, fmt.Errorf("platform account for owner %s is missing", s.deps.Config.PlatformOwnerID)
	}

	ids := []uuid.UUID{buyer.ID, seller.ID, platform.ID}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)
	locked := make(map[uuid.UUID]*wallet.Account, len(ids))
	for _, accID := range ids {
		acc, err := repos.Accounts.LockForUpdate(ctx, accID)
		if err != nil {
			return wallet.Split{}, err
		}
		locked[accID] = acc
	}

	ref := tx.ID.String()
	var entries []*wallet.Transaction
	debit, err := locked[buyer.ID].Debit(split.BuyerDebit, wallet.TypePurchaseDebit, ref, now)
	if err != nil {
		return wallet.Split{}, err
	}
	entries = append(entries, debit)
	if split.SellerCredit > 0 {
		credit, err := locked[seller.ID].Credit(split.SellerCredit, wallet.TypeSaleCredit, ref, now)
		if err != nil {
			return wallet.Split{}, err
		}
		entries = append(entries, credit)
	}
	if split.PlatformFee > 0 {
		fee, err := locked[platform.ID].Credit(split.PlatformFee, wallet.TypeFeeCredit, ref, now)
		if err != nil {
			return wallet.Split{}, err
		}
		entries = append(entries, fee)
	}

	for _, accID := range ids {
		acc := locked[accID]
		if err := acc.CheckInvariants(); err != nil {
			return wallet.Split{}, err
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return wallet.Split{}, err
		}
	}
	for _, wtx := range entries {
		if err := repos.WalletTxs.Create(ctx, wtx); err != nil {
			return wallet.Split{}, err
		}
	}
	return split, nil
}

func (s *SettlementServiceImpl) mutate(ctx context.Context, id uuid.UUID, fn func(repos Repositories, tx *settlement.Transaction, now time.Time) ([]*audit.Event, error)) (*settlement.Transaction, error) {
	now := s.deps.now()
	var updated *settlement.Transaction

	err := s.deps.inTx(ctx, func(repos Repositories) error {
		tx, err := repos.Transactions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		events, err := fn(repos, tx, now)
		if err != nil {
			return err
		}
		if err := repos.Transactions.Update(ctx, tx); err != nil {
			return err
		}
		updated = tx
		return emit(ctx, repos.Outbox, events...)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
