// Package wallet models the internal ledger accounts that hold buyer, seller and
// platform funds, and the append-only wallet transactions that explain every change.
package wallet

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// Currency is the only currency the marketplace settles in
const Currency = "BRL"

// Kind identifies who owns an account
type Kind string

const (
	KindUser     Kind = "user"
	KindCompany  Kind = "company"
	KindPlatform Kind = "platform"
)

func (k Kind) Valid() bool {
	return k == KindUser || k == KindCompany || k == KindPlatform
}

// Account represents a wallet. Balances are stored in centavos.
type Account struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Kind      Kind      `json:"kind"`
	Available int64     `json:"available"`
	Pending   int64     `json:"pending"`
	Currency  string    `json:"currency"`
	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount opens an empty account for owner
func NewAccount(ownerID uuid.UUID, kind Kind, now time.Time) (*Account, error) {
	if ownerID == uuid.Nil {
		return nil, shared.Precondition(shared.ErrInvalidInput, "owner is required")
	}
	if !kind.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown account kind %q", kind)
	}
	return &Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Currency:  Currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Total is always available + pending
func (a *Account) Total() int64 {
	return a.Available + a.Pending
}

// CanWithdraw checks if the account has sufficient available funds
func (a *Account) CanWithdraw(amount int64) bool {
	return a.Available >= amount
}

func positive(amount int64) error {
	if amount <= 0 {
		return shared.Precondition(shared.ErrInvalidAmount, "amount %d must be positive", amount)
	}
	return nil
}

// HoldDeposit books an initiated deposit as pending
func (a *Account) HoldDeposit(amount int64, method shared.PaymentMethod, externalRef string, now time.Time) (*Transaction, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	a.Pending += amount
	a.UpdatedAt = now
	return newTransaction(a.ID, TypeDeposit, amount, method, "", externalRef, TxStatusPending, now), nil
}

// SettleDeposit applies the gateway verdict to a pending deposit. A confirmed deposit
// moves from pending to available; any other final status drops it. Already final
// deposits are left untouched and false is returned.
func (a *Account) SettleDeposit(wtx *Transaction, status shared.PaymentStatus, now time.Time) (bool, error) {
	if wtx.AccountID != a.ID || wtx.Type != TypeDeposit {
		return false, shared.Precondition(shared.ErrInvalidInput, "wallet transaction %s is not a deposit of this account", wtx.ID)
	}
	if wtx.Status != TxStatusPending || status == shared.PaymentStatusPending {
		return false, nil
	}
	a.Pending -= wtx.Amount
	if status == shared.PaymentStatusConfirmed {
		a.Available += wtx.Amount
		wtx.complete(TxStatusCompleted, now)
	} else {
		wtx.complete(finalStatusFor(status), now)
	}
	a.UpdatedAt = now
	return true, nil
}

// ReserveWithdrawal moves amount from available to pending until the gateway answers
func (a *Account) ReserveWithdrawal(amount int64, method shared.PaymentMethod, now time.Time) (*Transaction, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	if !a.CanWithdraw(amount) {
		return nil, shared.Precondition(shared.ErrInsufficientAvailable,
			"withdrawal of %d exceeds available balance %d", amount, a.Available)
	}
	a.Available -= amount
	a.Pending += amount
	a.UpdatedAt = now
	return newTransaction(a.ID, TypeWithdrawal, amount, method, "", "", TxStatusPending, now), nil
}

// SettleWithdrawal applies the gateway verdict to a pending withdrawal. Confirmed funds
// leave the account; failed or cancelled funds return to available.
func (a *Account) SettleWithdrawal(wtx *Transaction, status shared.PaymentStatus, now time.Time) (bool, error) {
	if wtx.AccountID != a.ID || wtx.Type != TypeWithdrawal {
		return false, shared.Precondition(shared.ErrInvalidInput, "wallet transaction %s is not a withdrawal of this account", wtx.ID)
	}
	if wtx.Status != TxStatusPending || status == shared.PaymentStatusPending {
		return false, nil
	}
	a.Pending -= wtx.Amount
	if status == shared.PaymentStatusConfirmed {
		wtx.complete(TxStatusCompleted, now)
	} else {
		a.Available += wtx.Amount
		wtx.complete(finalStatusFor(status), now)
	}
	a.UpdatedAt = now
	return true, nil
}

// Debit removes amount from available as part of a settlement
func (a *Account) Debit(amount int64, typ TxType, counterpartRef string, now time.Time) (*Transaction, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	if !a.CanWithdraw(amount) {
		return nil, shared.Precondition(shared.ErrInsufficientAvailable,
			"debit of %d exceeds available balance %d", amount, a.Available)
	}
	a.Available -= amount
	a.UpdatedAt = now
	return newTransaction(a.ID, typ, amount, shared.PaymentMethodWallet, counterpartRef, "", TxStatusCompleted, now), nil
}

// Credit adds amount to available as part of a settlement
func (a *Account) Credit(amount int64, typ TxType, counterpartRef string, now time.Time) (*Transaction, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	a.Available += amount
	a.UpdatedAt = now
	return newTransaction(a.ID, typ, amount, shared.PaymentMethodWallet, counterpartRef, "", TxStatusCompleted, now), nil
}

// CheckInvariants verifies that neither balance went negative
func (a *Account) CheckInvariants() error {
	if a.Available < 0 || a.Pending < 0 {
		return shared.Precondition(shared.ErrInsufficientAvailable,
			"account %s has negative balance (available %d, pending %d)", a.ID, a.Available, a.Pending)
	}
	return nil
}

func finalStatusFor(status shared.PaymentStatus) TxStatus {
	if status == shared.PaymentStatusCancelled {
		return TxStatusCancelled
	}
	return TxStatusFailed
}
