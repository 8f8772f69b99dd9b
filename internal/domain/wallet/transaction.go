package wallet

import (
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// TxType defines wallet transaction kinds
type TxType string

const (
	TypeDeposit       TxType = "deposit"
	TypeWithdrawal    TxType = "withdrawal"
	TypePurchaseDebit TxType = "purchase_debit"
	TypeSaleCredit    TxType = "sale_credit"
	TypeFeeCredit     TxType = "fee_credit"
)

// TxStatus defines wallet transaction processing states
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
	TxStatusCancelled TxStatus = "cancelled"
)

// Transaction is the append-only record of one balance mutation. Only Status,
// ExternalRef and CompletedAt change after creation.
type Transaction struct {
	ID             uuid.UUID            `json:"id"`
	AccountID      uuid.UUID            `json:"account_id"`
	Type           TxType               `json:"type"`
	Amount         int64                `json:"amount"`
	Method         shared.PaymentMethod `json:"method"`
	CounterpartRef string               `json:"counterpart_ref,omitempty"`
	ExternalRef    string               `json:"external_ref,omitempty"`
	Status         TxStatus             `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

func newTransaction(accountID uuid.UUID, typ TxType, amount int64, method shared.PaymentMethod, counterpart, externalRef string, status TxStatus, now time.Time) *Transaction {
	wtx := &Transaction{
		ID:             uuid.New(),
		AccountID:      accountID,
		Type:           typ,
		Amount:         amount,
		Method:         method,
		CounterpartRef: counterpart,
		ExternalRef:    externalRef,
		Status:         status,
		CreatedAt:      now,
	}
	if status != TxStatusPending {
		wtx.CompletedAt = &now
	}
	return wtx
}

func (t *Transaction) complete(status TxStatus, now time.Time) {
	t.Status = status
	t.CompletedAt = &now
}

// Final reports whether the record reached a terminal status
func (t *Transaction) Final() bool {
	return t.Status != TxStatusPending
}
