// Package collaborators declares the external services the marketplace depends on
// (document validation, tokenization, payment gateway) and provides deterministic
// sandbox implementations for local runs and tests.
package collaborators

import (
	"context"
	"errors"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
)

// ValidationResult is the validator's verdict on a title's documents
type ValidationResult struct {
	Approved      bool
	Confidence    float64
	Justification string
	Details       []title.DocumentVerdict
}

// Validator checks documents and eligibility of a title
type Validator interface {
	Validate(ctx context.Context, documents []title.Document, titleType title.Type) (ValidationResult, error)
}

// MintResult identifies a freshly minted token
type MintResult struct {
	TokenID     string
	ContractRef string
	TxHash      string
}

// Tokenizer mints the on-chain representation of a title
type Tokenizer interface {
	Mint(ctx context.Context, t *title.Title) (MintResult, error)
}

// PaymentGateway moves money in and out of the platform
type PaymentGateway interface {
	Initiate(ctx context.Context, amount int64, method shared.PaymentMethod) (string, error)
	Confirm(ctx context.Context, paymentRef string) (shared.PaymentStatus, error)
}

// ErrUnknownPaymentReference is returned by gateways for references they never issued
var ErrUnknownPaymentReference = errors.New("unknown payment reference")
