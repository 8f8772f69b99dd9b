package service

import (
	"context"

	"github.com/credit-title-marketplace/internal/domain/settlement"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/wallet"
)

// CallbackProcessor applies payment gateway callbacks to the marketplace state
type CallbackProcessor interface {
	ProcessCallback(ctx context.Context, cb *shared.PaymentCallback) error
}

// PaymentApplier is the settlement engine side a transaction payment callback lands on
type PaymentApplier interface {
	ApplyPaymentCallback(ctx context.Context, cb *shared.PaymentCallback) (*settlement.Transaction, error)
}

// WalletConfirmer is the wallet ledger side deposit and withdrawal callbacks land on
type WalletConfirmer interface {
	ConfirmDeposit(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error)
	ConfirmWithdrawal(ctx context.Context, ref string, status shared.PaymentStatus) (*wallet.Transaction, error)
}
