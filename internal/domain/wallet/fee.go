package wallet

import (
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Split is how a settled transaction value is distributed
type Split struct {
	BuyerDebit   int64
	SellerCredit int64
	PlatformFee  int64
}

// ComputeFee returns round(value * rate) in centavos, half away from zero
func ComputeFee(value int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(value).Mul(rate).Round(0).IntPart()
}

// SplitSettlement distributes value between seller and platform
func SplitSettlement(value int64, rate decimal.Decimal) (Split, error) {
	if value <= 0 {
		return Split{}, shared.Precondition(shared.ErrInvalidAmount, "settlement value %d must be positive", value)
	}
	fee := ComputeFee(value, rate)
	if fee < 0 || fee > value {
		return Split{}, shared.Precondition(shared.ErrInvalidAmount, "fee %d is outside [0, %d]", fee, value)
	}
	return Split{
		BuyerDebit:   value,
		SellerCredit: value - fee,
		PlatformFee:  fee,
	}, nil
}
