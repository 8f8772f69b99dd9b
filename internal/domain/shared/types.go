package shared

import (
	"time"

	"github.com/google/uuid"
)

// SystemActor identifies changes made by sweeps and callbacks rather than a user.
var SystemActor = uuid.Nil

// PaymentMethod defines how money enters or leaves the platform
type PaymentMethod string

const (
	PaymentMethodPix    PaymentMethod = "pix"
	PaymentMethodTED    PaymentMethod = "ted"
	PaymentMethodBoleto PaymentMethod = "boleto"
	PaymentMethodWallet PaymentMethod = "carteira"
)

// Valid reports whether m is a supported payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPix, PaymentMethodTED, PaymentMethodBoleto, PaymentMethodWallet:
		return true
	}
	return false
}

// PaymentStatus is the state reported by the payment gateway for a reference
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// CallbackKind tells the settlement worker which aggregate a gateway callback belongs to
type CallbackKind string

const (
	CallbackTransactionPayment CallbackKind = "TRANSACTION_PAYMENT"
	CallbackDeposit            CallbackKind = "DEPOSIT"
	CallbackWithdrawal         CallbackKind = "WITHDRAWAL"
)

// PaymentCallback defines a Kafka message delivered by the payment gateway.
// Delivery is at-least-once, so every handler must be idempotent.
type PaymentCallback struct {
	Kind          CallbackKind  `json:"kind"`
	PaymentRef    string        `json:"payment_ref"`
	Status        PaymentStatus `json:"status"`
	TransactionID uuid.UUID     `json:"transaction_id,omitempty"`
	ProofRef      string        `json:"proof_ref,omitempty"`
	CorrelationID string        `json:"correlation_id"`
	Timestamp     time.Time     `json:"timestamp"`
}
