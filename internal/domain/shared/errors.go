package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PreconditionError reports a command that was refused because the entity was not
// in a state that allows it. The command has no side effect when one is returned.
type PreconditionError struct {
	Code    string
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches on Code so that errors.Is(err, shared.ErrBelowMinimum) works for any message.
func (e *PreconditionError) Is(target error) bool {
	t, ok := target.(*PreconditionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Precondition sentinels. Use Precondition to attach a specific message.
var (
	ErrInvalidStateTransition     = &PreconditionError{Code: "INVALID_STATE_TRANSITION", Message: "the requested status change is not allowed"}
	ErrInvalidInput               = &PreconditionError{Code: "INVALID_INPUT", Message: "the request contains invalid values"}
	ErrTitleNotEligible           = &PreconditionError{Code: "TITLE_NOT_ELIGIBLE", Message: "title must be validated or tokenized"}
	ErrNotTitleOwner              = &PreconditionError{Code: "NOT_TITLE_OWNER", Message: "only the title owner may perform this action"}
	ErrActiveTransactionExists    = &PreconditionError{Code: "ACTIVE_TRANSACTION_EXISTS", Message: "title has a transaction in progress"}
	ErrExistingActiveListing      = &PreconditionError{Code: "EXISTING_ACTIVE_LISTING", Message: "title already has an open listing"}
	ErrInvalidPricing             = &PreconditionError{Code: "INVALID_PRICING", Message: "pricing must satisfy minimum <= suggested <= original <= available"}
	ErrListingNotActive           = &PreconditionError{Code: "LISTING_NOT_ACTIVE", Message: "listing is not active"}
	ErrNotListingSeller           = &PreconditionError{Code: "NOT_LISTING_SELLER", Message: "only the seller may perform this action"}
	ErrSelfDealingNotAllowed      = &PreconditionError{Code: "SELF_DEALING_NOT_ALLOWED", Message: "buyer cannot be the title owner"}
	ErrBelowMinimum               = &PreconditionError{Code: "BELOW_MINIMUM", Message: "value is below the listing minimum"}
	ErrNotPending                 = &PreconditionError{Code: "NOT_PENDING", Message: "proposal is not pending"}
	ErrProposalExpired            = &PreconditionError{Code: "PROPOSAL_EXPIRED", Message: "proposal has expired"}
	ErrNotProposalBuyer           = &PreconditionError{Code: "NOT_PROPOSAL_BUYER", Message: "only the buyer may perform this action"}
	ErrNotTransactionParty        = &PreconditionError{Code: "NOT_TRANSACTION_PARTY", Message: "actor is not a party to the transaction"}
	ErrNotPaymentConfirmed        = &PreconditionError{Code: "NOT_PAYMENT_CONFIRMED", Message: "payment has not been confirmed"}
	ErrPaymentProofMismatch       = &PreconditionError{Code: "PAYMENT_PROOF_MISMATCH", Message: "payment already confirmed with a different proof"}
	ErrComplianceHoldActive       = &PreconditionError{Code: "COMPLIANCE_HOLD_ACTIVE", Message: "transaction is held for compliance review"}
	ErrNoComplianceHold           = &PreconditionError{Code: "NO_COMPLIANCE_HOLD", Message: "transaction has no compliance hold to clear"}
	ErrReversalWindowClosed       = &PreconditionError{Code: "REVERSAL_WINDOW_CLOSED", Message: "administrative reversal window has closed"}
	ErrInsufficientAvailable      = &PreconditionError{Code: "INSUFFICIENT_AVAILABLE_BALANCE", Message: "amount exceeds available balance"}
	ErrInvalidAmount              = &PreconditionError{Code: "INVALID_AMOUNT", Message: "amount must be positive"}
	ErrAccountAlreadyExists       = &PreconditionError{Code: "ACCOUNT_ALREADY_EXISTS", Message: "owner already has an account"}
	ErrNotAccountOwner            = &PreconditionError{Code: "NOT_ACCOUNT_OWNER", Message: "only the account owner may move its funds"}
	ErrPaymentNotRequested        = &PreconditionError{Code: "PAYMENT_NOT_REQUESTED", Message: "payment has not been requested for this transaction"}
	ErrWalletTransactionNotActive = &PreconditionError{Code: "WALLET_TRANSACTION_NOT_PENDING", Message: "wallet transaction is already final"}
)

// Precondition returns a PreconditionError carrying the sentinel's code and a specific message.
func Precondition(sentinel *PreconditionError, format string, args ...any) error {
	return &PreconditionError{Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is any precondition violation.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ErrNotFound indicates a missing entity
type ErrNotFound struct {
	Entity string
	ID     uuid.UUID
}

func (e ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrNotFound.
// An empty target Entity or nil target ID matches any value.
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	if t.Entity != "" && t.Entity != e.Entity {
		return false
	}
	return t.ID == uuid.Nil || t.ID == e.ID
}

// ErrConcurrentModification indicates an optimistic lock failure. Callers reload and retry.
type ErrConcurrentModification struct {
	Entity string
	ID     uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for " + e.Entity + ": " + e.ID.String()
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	if t.Entity != "" && t.Entity != e.Entity {
		return false
	}
	return t.ID == uuid.Nil || t.ID == e.ID
}

// Collaborator failures
var (
	ErrCollaboratorTimeout     = errors.New("collaborator did not answer in time")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
