package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/audit"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/wallet"
	"github.com/google/uuid"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	deps   *Dependencies
	logger *slog.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(deps *Dependencies) WalletService {
	return &WalletServiceImpl{
		deps:   deps,
		logger: deps.Logger.With("component", "wallet_service"),
	}
}

func accountEvent(acc *wallet.Account, typ audit.EventType, actor uuid.UUID, summary string, now time.Time) *audit.Event {
	return audit.NewEvent(audit.AggregateAccount, acc.ID, typ, actor, summary, now, acc.OwnerID).
		With("available", fmt.Sprint(acc.Available)).
		With("pending", fmt.Sprint(acc.Pending))
}

// ensureAccount returns the owner's account, opening one when it does not exist yet
func ensureAccount(ctx context.Context, repos Repositories, ownerID uuid.UUID, kind wallet.Kind, now time.Time) (*wallet.Account, error) {
	acc, err := repos.Accounts.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}
	acc, err = wallet.NewAccount(ownerID, kind, now)
	if err != nil {
		return nil, err
	}
	if err := repos.Accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, shared.ErrAccountAlreadyExists) {
			// another transaction opened it first; the caller retries
			return nil, shared.ErrConcurrentModification{Entity: "account", ID: ownerID}
		}
		return nil, err
	}
	return acc, nil
}

func normalizePage(page, perPage int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return perPage, (page - 1) * perPage
}

// OpenAccount creates an empty wallet for the owner
func (s *WalletServiceImpl) OpenAccount(ctx context.Context, ownerID uuid.UUID, kind wallet.Kind) (*wallet.Account, error) {
	now := s.deps.now()
	acc, err := wallet.NewAccount(ownerID, kind, now)
	if err != nil {
		return nil, err
	}

	err = s.deps.inTx(ctx, func(repos Repositories) error {
		if err := repos.Accounts.Create(ctx, acc); err != nil {
			return err
		}
		return emit(ctx, repos.Outbox, accountEvent(acc, audit.AccountOpened, ownerID, "wallet opened", now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account opened", "account_id", acc.ID.String(), "owner_id", ownerID.String(), "kind", string(kind))
	return acc, nil
}

// EnsurePlatformAccount opens the fee account on first start
func (s *WalletServiceImpl) EnsurePlatformAccount(ctx context.Context) (*wallet.Account, error) {
	owner := s.deps.Config.PlatformOwnerID
	acc, err := s.deps.Repos.Accounts.GetByOwnerID(ctx, owner)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}

	acc, err = s.OpenAccount(ctx, owner, wallet.KindPlatform)
	if errors.Is(err, shared.ErrAccountAlreadyExists) {
		return s.deps.Repos.Accounts.GetByOwnerID(ctx, owner)
	}
	return acc, err
}

// GetAccount retrieves an account by its ID
func (s *WalletServiceImpl) GetAccount(ctx context.Context, id uuid.UUID) (*wallet.Account, error) {
	return s.deps.Repos.Accounts.GetByID(ctx, id)
}

// ListTransactions returns one page of an account's wallet transactions, newest first
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, accountID uuid.UUID, page, perPage int) ([]*wallet.Transaction, int64, error) {
	if _, err := s.deps.Repos.Accounts.GetByID(ctx, accountID); err != nil {
		return nil, 0, err
	}
	limit, offset := normalizePage(page, perPage)

	txs, err := s.deps.Repos.WalletTxs.ListByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.deps.Repos.WalletTxs.CountByAccountID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (s *WalletServiceImpl) ownedAccount(ctx context.Context, accountID, actor uuid.UUID) (*wallet.Account, error) {
	acc, err := s.deps.Repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.OwnerID != actor {
		return nil, shared.Precondition(shared.ErrNotAccountOwner, "actor %s does not own account %s", actor, acc.ID)
	}
	return acc, nil
}

func externalMethod(method shared.PaymentMethod) error {
	if !method.Valid() || method == shared.PaymentMethodWallet {
		return shared.Precondition(shared.ErrInvalidInput, "method %q cannot move money in or out of a wallet", method)
	}
	return nil
}

// Deposit initiates an inbound payment; the amount stays pending until the gateway confirms it
func (s *WalletServiceImpl) Deposit(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error) {
	if amount <= 0 {
		return nil, shared.Precondition(shared.ErrInvalidAmount, "amount %d must be positive", amount)
	}
	if err := externalMethod(method); err != nil {
		return nil, err
	}
	if _, err := s.ownedAccount(ctx, accountID, actor); err != nil {
		return nil, err
	}

	var ref string
	err := s.deps.retry().do(ctx, s.logger, "initiate deposit", func(ctx context.Context) error {
		var ierr error
		ref, ierr = s.deps.Gateway.Initiate(ctx, amount, method)
		return ierr
	})
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	var wtx *wallet.Transaction
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		acc, err := repos.Accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		wtx, err = acc.HoldDeposit(amount, method, ref, now)
		if err != nil {
			return err
		}
		if err := acc.CheckInvariants(); err != nil {
			return err
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return err
		}
		if err := repos.WalletTxs.Create(ctx, wtx); err != nil {
			return err
		}
		return emit(ctx, repos.Outbox, accountEvent(acc, audit.DepositRequested, actor, "deposit awaiting confirmation", now).
			With("amount", fmt.Sprint(amount)).
			With("external_ref", ref))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposit initiated", "account_id", accountID.String(), "amount", amount, "external_ref", ref)
	return wtx, nil
}

// ConfirmDeposit applies the gateway verdict to a pending deposit. Repeats are no-ops.
func (s *WalletServiceImpl) ConfirmDeposit(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error) {
	return s.settleExternal(ctx, ref, status, wallet.TypeDeposit, audit.DepositSettled,
		func(acc *wallet.Account, wtx *wallet.Transaction, now time.Time) (bool, error) {
			return acc.SettleDeposit(wtx, status, now)
		})
}

// Withdraw reserves funds, then asks the gateway to pay them out. When the gateway
// cannot be reached the reservation is reversed.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, accountID, actor uuid.UUID, amount int64, method shared.PaymentMethod) (*wallet.Transaction, error) {
	if err := externalMethod(method); err != nil {
		return nil, err
	}
	if _, err := s.ownedAccount(ctx, accountID, actor); err != nil {
		return nil, err
	}

	now := s.deps.now()
	var wtx *wallet.Transaction
	err := s.deps.inTx(ctx, func(repos Repositories) error {
		acc, err := repos.Accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		wtx, err = acc.ReserveWithdrawal(amount, method, now)
		if err != nil {
			return err
		}
		if err := acc.CheckInvariants(); err != nil {
			return err
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return err
		}
		return repos.WalletTxs.Create(ctx, wtx)
	})
	if err != nil {
		return nil, err
	}

	var ref string
	initErr := s.deps.retry().do(ctx, s.logger, "initiate withdrawal", func(ctx context.Context) error {
		var ierr error
		ref, ierr = s.deps.Gateway.Initiate(ctx, amount, method)
		return ierr
	})

	now = s.deps.now()
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		acc, err := repos.Accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		current, err := repos.WalletTxs.GetByID(ctx, wtx.ID)
		if err != nil {
			return err
		}

		if initErr != nil {
			if _, err := acc.SettleWithdrawal(current, shared.PaymentStatusFailed, now); err != nil {
				return err
			}
			if err := repos.Accounts.Update(ctx, acc); err != nil {
				return err
			}
			wtx = current
			return repos.WalletTxs.UpdateStatus(ctx, current)
		}

		current.ExternalRef = ref
		if err := repos.WalletTxs.UpdateStatus(ctx, current); err != nil {
			return err
		}
		wtx = current
		return emit(ctx, repos.Outbox, accountEvent(acc, audit.WithdrawalRequested, actor, "withdrawal awaiting confirmation", now).
			With("amount", fmt.Sprint(amount)).
			With("external_ref", ref))
	})
	if err != nil {
		return nil, err
	}
	if initErr != nil {
		s.logger.Warn("Withdrawal reversed, gateway unavailable", "account_id", accountID.String(), "error", initErr)
		return nil, initErr
	}

	s.logger.Info("Withdrawal initiated", "account_id", accountID.String(), "amount", amount, "external_ref", ref)
	return wtx, nil
}

// ConfirmWithdrawal applies the gateway verdict to a pending withdrawal. Repeats are no-ops.
func (s *WalletServiceImpl) ConfirmWithdrawal(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error) {
	return s.settleExternal(ctx, ref, status, wallet.TypeWithdrawal, audit.WithdrawalSettled,
		func(acc *wallet.Account, wtx *wallet.Transaction, now time.Time) (bool, error) {
			return acc.SettleWithdrawal(wtx, status, now)
		})
}

func (s *WalletServiceImpl) settleExternal(ctx context.Context, ref string, status shared.PaymentStatus, typ wallet.TxType, eventType audit.EventType,
	apply func(acc *wallet.Account, wtx *wallet.Transaction, now time.Time) (bool, error)) (*wallet.Transaction, error) {
	if ref == "" {
		return nil, shared.Precondition(shared.ErrInvalidInput, "external reference is required")
	}
	found, err := s.deps.Repos.WalletTxs.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if found.Type != typ {
		return nil, shared.Precondition(shared.ErrInvalidInput, "reference %s belongs to a %s, not a %s", ref, found.Type, typ)
	}
	if found.Final() {
		return found, nil
	}

	now := s.deps.now()
	var result *wallet.Transaction
	err = s.deps.inTx(ctx, func(repos Repositories) error {
		acc, err := repos.Accounts.LockForUpdate(ctx, found.AccountID)
		if err != nil {
			return err
		}
		wtx, err := repos.WalletTxs.GetByID(ctx, found.ID)
		if err != nil {
			return err
		}
		result = wtx

		changed, err := apply(acc, wtx, now)
		if err != nil || !changed {
			return err
		}
		if err := acc.CheckInvariants(); err != nil {
			return err
		}
		if err := repos.Accounts.Update(ctx, acc); err != nil {
			return err
		}
		if err := repos.WalletTxs.UpdateStatus(ctx, wtx); err != nil {
			return err
		}
		return emit(ctx, repos.Outbox, accountEvent(acc, eventType, shared.SystemActor, string(typ)+" "+string(wtx.Status), now).
			With("amount", fmt.Sprint(wtx.Amount)).
			With("external_ref", ref))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("External wallet movement settled",
		"wallet_transaction_id", result.ID.String(),
		"type", string(typ),
		"status", string(result.Status),
	)
	return result, nil
}
