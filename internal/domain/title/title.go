// Package title models a tradeable credit title and its lifecycle state machine.
package title

import (
	"fmt"
	"time"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/google/uuid"
)

// Type is the legal origin of a credit title
type Type string

const (
	TypePrecatorio            Type = "precatorio"
	TypeHonorarios            Type = "honorarios"
	TypeContratoExtrajudicial Type = "contrato_extrajudicial"
	TypeExcessoTributario     Type = "excesso_tributario"
	TypeCreditoTributario     Type = "credito_tributario"
	TypeOutro                 Type = "outro"
)

func (t Type) Valid() bool {
	switch t {
	case TypePrecatorio, TypeHonorarios, TypeContratoExtrajudicial,
		TypeExcessoTributario, TypeCreditoTributario, TypeOutro:
		return true
	}
	return false
}

// Category groups titles for marketplace search
type Category string

const (
	CategoryTributario  Category = "tributario"
	CategoryComercial   Category = "comercial"
	CategoryFinanceiro  Category = "financeiro"
	CategoryJudicial    Category = "judicial"
	CategoryRural       Category = "rural"
	CategoryImobiliario Category = "imobiliario"
	CategoryAmbiental   Category = "ambiental"
	CategoryEspecial    Category = "especial"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTributario, CategoryComercial, CategoryFinanceiro, CategoryJudicial,
		CategoryRural, CategoryImobiliario, CategoryAmbiental, CategoryEspecial:
		return true
	}
	return false
}

// Status is the lifecycle state of a title
type Status string

const (
	StatusDraft       Status = "draft"
	StatusValidating  Status = "validating"
	StatusValidated   Status = "validated"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
	StatusTokenizing  Status = "tokenizing"
	StatusTokenized   Status = "tokenized"
	StatusListed      Status = "listed"
	StatusSold        Status = "sold"
	StatusCompensated Status = "compensated"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no user-driven transition leaves s.
// Sold and compensated only leave through an administrative reversal.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusSold, StatusCompensated, StatusCancelled:
		return true
	}
	return false
}

// Eligible reports whether a title in s may be listed
func (s Status) Eligible() bool {
	return s == StatusValidated || s == StatusTokenized
}

var transitions = map[Status][]Status{
	StatusDraft:       {StatusValidating, StatusCancelled},
	StatusValidating:  {StatusValidated, StatusRejected, StatusCancelled},
	StatusValidated:   {StatusTokenizing, StatusListed, StatusExpired, StatusCancelled},
	StatusTokenizing:  {StatusTokenized, StatusValidated, StatusCancelled},
	StatusTokenized:   {StatusListed, StatusCancelled},
	StatusListed:      {StatusSold, StatusCompensated, StatusValidated, StatusTokenized, StatusCancelled},
	StatusSold:        {StatusCancelled},
	StatusCompensated: {StatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DocumentStatus is the per-document validation verdict
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is a supporting file owned by exactly one title
type Document struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	URL    string         `json:"url"`
	Status DocumentStatus `json:"status"`
	Note   string         `json:"note,omitempty"`
}

// HistoryEvent is one append-only lifecycle record
type HistoryEvent struct {
	At          time.Time         `json:"at"`
	Actor       uuid.UUID         `json:"actor"`
	Kind        string            `json:"kind"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}

// ValidationOutcome is what the document validator decided
type ValidationOutcome struct {
	Approved      bool      `json:"approved"`
	Confidence    float64   `json:"confidence"`
	Justification string    `json:"justification"`
	At            time.Time `json:"at"`
}

// DocumentVerdict is the validator's result for a single document
type DocumentVerdict struct {
	DocumentID uuid.UUID `json:"document_id"`
	Approved   bool      `json:"approved"`
	Note       string    `json:"note,omitempty"`
}

// TokenRecord identifies the on-chain representation of a title
type TokenRecord struct {
	TokenID     string    `json:"token_id"`
	ContractRef string    `json:"contract_ref"`
	TxHash      string    `json:"tx_hash"`
	MintedAt    time.Time `json:"minted_at"`
}

// Title represents a credit title. Values are centavos.
type Title struct {
	ID             uuid.UUID          `json:"id"`
	Number         string             `json:"number"`
	Type           Type               `json:"type"`
	Category       Category           `json:"category"`
	OriginalValue  int64              `json:"original_value"`
	AvailableValue int64              `json:"available_value"`
	IssueDate      time.Time          `json:"issue_date"`
	MaturityDate   time.Time          `json:"maturity_date"`
	Status         Status             `json:"status"`
	OwnerID        uuid.UUID          `json:"owner_id"`
	IssuerName     string             `json:"issuer_name"`
	Debtor         string             `json:"debtor"`
	Documents      []Document         `json:"documents"`
	History        []HistoryEvent     `json:"history"`
	Validation     *ValidationOutcome `json:"validation,omitempty"`
	Token          *TokenRecord       `json:"token,omitempty"`
	ClosedAt       *time.Time         `json:"closed_at,omitempty"`
	Version        int                `json:"version"` // For optimistic locking
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewTitleParams carries the registration fields
type NewTitleParams struct {
	Number        string
	Type          Type
	Category      Category
	OriginalValue int64
	IssueDate     time.Time
	MaturityDate  time.Time
	OwnerID       uuid.UUID
	IssuerName    string
	Debtor        string
	Documents     []Document
}

// New registers a title in draft
func New(p NewTitleParams, now time.Time) (*Title, error) {
	if !p.Type.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown title type %q", p.Type)
	}
	if !p.Category.Valid() {
		return nil, shared.Precondition(shared.ErrInvalidInput, "unknown title category %q", p.Category)
	}
	if p.OriginalValue <= 0 {
		return nil, shared.Precondition(shared.ErrInvalidInput, "original value must be positive")
	}
	if !p.IssueDate.Before(p.MaturityDate) {
		return nil, shared.Precondition(shared.ErrInvalidInput, "issue date must be before maturity date")
	}
	if p.OwnerID == uuid.Nil {
		return nil, shared.Precondition(shared.ErrInvalidInput, "owner is required")
	}
	if p.IssuerName == "" {
		return nil, shared.Precondition(shared.ErrInvalidInput, "issuer name is required")
	}

	t := &Title{
		ID:             uuid.New(),
		Number:         p.Number,
		Type:           p.Type,
		Category:       p.Category,
		OriginalValue:  p.OriginalValue,
		AvailableValue: p.OriginalValue,
		IssueDate:      p.IssueDate,
		MaturityDate:   p.MaturityDate,
		Status:         StatusDraft,
		OwnerID:        p.OwnerID,
		IssuerName:     p.IssuerName,
		Debtor:         p.Debtor,
		Documents:      []Document{},
		History:        []HistoryEvent{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, d := range p.Documents {
		t.Documents = append(t.Documents, newDocument(d))
	}
	t.record(p.OwnerID, "created", "title registered", nil, now)
	return t, nil
}

func newDocument(d Document) Document {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = DocumentPending
	d.Note = ""
	return d
}

func (t *Title) record(actor uuid.UUID, kind, description string, details map[string]string, now time.Time) {
	t.History = append(t.History, HistoryEvent{
		At:          now,
		Actor:       actor,
		Kind:        kind,
		Description: description,
		Details:     details,
	})
	t.UpdatedAt = now
}

func (t *Title) transition(to Status, actor uuid.UUID, description string, details map[string]string, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return shared.Precondition(shared.ErrInvalidStateTransition,
			"title %s cannot move from %s to %s", t.Number, t.Status, to)
	}
	from := t.Status
	t.Status = to
	if details == nil {
		details = map[string]string{}
	}
	details["from"] = string(from)
	details["to"] = string(to)
	t.record(actor, "status_changed", description, details, now)
	return nil
}

// AttachDocument adds a supporting document while the title is a draft
func (t *Title) AttachDocument(doc Document, actor uuid.UUID, now time.Time) (Document, error) {
	if t.Status != StatusDraft {
		return Document{}, shared.Precondition(shared.ErrInvalidStateTransition,
			"documents can only be attached to draft titles, title is %s", t.Status)
	}
	if doc.Name == "" {
		return Document{}, shared.Precondition(shared.ErrInvalidInput, "document name is required")
	}
	d := newDocument(doc)
	t.Documents = append(t.Documents, d)
	t.record(actor, "document_attached", "document "+d.Name+" attached", map[string]string{"document_id": d.ID.String()}, now)
	return d, nil
}

// SubmitForValidation moves a draft with at least one document to validating
func (t *Title) SubmitForValidation(actor uuid.UUID, now time.Time) error {
	if t.Status == StatusDraft && len(t.Documents) == 0 {
		return shared.Precondition(shared.ErrInvalidInput, "at least one document is required for validation")
	}
	return t.transition(StatusValidating, actor, "submitted for validation", nil, now)
}

// ApplyValidation records the validator outcome and moves to validated or rejected
func (t *Title) ApplyValidation(outcome ValidationOutcome, verdicts []DocumentVerdict, now time.Time) error {
	to := StatusRejected
	if outcome.Approved {
		to = StatusValidated
	}
	details := map[string]string{
		"confidence":    fmt.Sprintf("%.4f", outcome.Confidence),
		"justification": outcome.Justification,
	}
	if err := t.transition(to, shared.SystemActor, "validation completed", details, now); err != nil {
		return err
	}
	outcome.At = now
	t.Validation = &outcome

	byID := make(map[uuid.UUID]DocumentVerdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.DocumentID] = v
	}
	for i := range t.Documents {
		v, ok := byID[t.Documents[i].ID]
		switch {
		case ok && v.Approved:
			t.Documents[i].Status = DocumentApproved
			t.Documents[i].Note = v.Note
		case ok:
			t.Documents[i].Status = DocumentRejected
			t.Documents[i].Note = v.Note
		case outcome.Approved:
			t.Documents[i].Status = DocumentApproved
		default:
			t.Documents[i].Status = DocumentRejected
		}
	}
	return nil
}

// BeginTokenization moves a validated title to tokenizing
func (t *Title) BeginTokenization(actor uuid.UUID, now time.Time) error {
	return t.transition(StatusTokenizing, actor, "tokenization started", nil, now)
}

// CompleteTokenization stores the minted token
func (t *Title) CompleteTokenization(token TokenRecord, now time.Time) error {
	details := map[string]string{"token_id": token.TokenID, "tx_hash": token.TxHash}
	if err := t.transition(StatusTokenized, shared.SystemActor, "token minted", details, now); err != nil {
		return err
	}
	token.MintedAt = now
	t.Token = &token
	return nil
}

// FailTokenization returns the title to validated after a mint failure
func (t *Title) FailTokenization(reason string, now time.Time) error {
	return t.transition(StatusValidated, shared.SystemActor, "tokenization failed", map[string]string{"reason": reason}, now)
}

// MarkListed moves an eligible title to listed
func (t *Title) MarkListed(listingID uuid.UUID, actor uuid.UUID, now time.Time) error {
	if !t.Status.Eligible() {
		return shared.Precondition(shared.ErrTitleNotEligible, "title %s is %s", t.Number, t.Status)
	}
	return t.transition(StatusListed, actor, "listed on marketplace", map[string]string{"listing_id": listingID.String()}, now)
}

// eligibleStatus is where a listed title goes back to when its listing closes without a full sale
func (t *Title) eligibleStatus() Status {
	if t.Token != nil {
		return StatusTokenized
	}
	return StatusValidated
}

// ReturnToEligible takes a listed title back to validated or tokenized
func (t *Title) ReturnToEligible(actor uuid.UUID, reason string, now time.Time) error {
	return t.transition(t.eligibleStatus(), actor, reason, nil, now)
}

// ApplySale decrements the available value by a settled amount. A full sale closes the
// title and moves ownership to the buyer; a partial one returns it to eligible.
func (t *Title) ApplySale(value int64, buyer uuid.UUID, compensation bool, transactionID uuid.UUID, now time.Time) error {
	if t.Status != StatusListed {
		return shared.Precondition(shared.ErrInvalidStateTransition, "title %s is %s, expected listed", t.Number, t.Status)
	}
	if value <= 0 || value > t.AvailableValue {
		return shared.Precondition(shared.ErrInvalidAmount,
			"settled value %d is outside available value %d", value, t.AvailableValue)
	}
	t.AvailableValue -= value
	details := map[string]string{
		"transaction_id": transactionID.String(),
		"value":          fmt.Sprint(value),
		"available":      fmt.Sprint(t.AvailableValue),
	}
	if t.AvailableValue > 0 {
		return t.transition(t.eligibleStatus(), shared.SystemActor, "partially sold", details, now)
	}
	to := StatusSold
	if compensation {
		to = StatusCompensated
	}
	details["previous_owner"] = t.OwnerID.String()
	if err := t.transition(to, shared.SystemActor, "settled", details, now); err != nil {
		return err
	}
	t.OwnerID = buyer
	t.ClosedAt = &now
	return nil
}

// Cancel is the explicit user cancellation of a non-terminal title
func (t *Title) Cancel(actor uuid.UUID, reason string, now time.Time) error {
	if t.Status.Terminal() {
		return shared.Precondition(shared.ErrInvalidStateTransition, "title %s is already %s", t.Number, t.Status)
	}
	return t.transition(StatusCancelled, actor, "cancelled", map[string]string{"reason": reason}, now)
}

// Reverse is the administrative reversal of a sold or compensated title
func (t *Title) Reverse(admin uuid.UUID, reason string, window time.Duration, now time.Time) error {
	if t.Status != StatusSold && t.Status != StatusCompensated {
		return shared.Precondition(shared.ErrInvalidStateTransition, "only sold or compensated titles can be reversed, title is %s", t.Status)
	}
	if t.ClosedAt == nil || now.After(t.ClosedAt.Add(window)) {
		return shared.Precondition(shared.ErrReversalWindowClosed, "title %s can no longer be reversed", t.Number)
	}
	return t.transition(StatusCancelled, admin, "administratively reversed", map[string]string{"reason": reason}, now)
}

// ExpireIfMatured moves a validated title whose maturity passed to expired.
// It reports whether the title changed.
func (t *Title) ExpireIfMatured(now time.Time) bool {
	if t.Status != StatusValidated || !t.MaturityDate.Before(now) {
		return false
	}
	_ = t.transition(StatusExpired, shared.SystemActor, "matured without sale", nil, now)
	return true
}

// CheckInvariants verifies the value bounds
func (t *Title) CheckInvariants() error {
	if t.AvailableValue < 0 || t.AvailableValue > t.OriginalValue {
		return fmt.Errorf("title %s: available value %d outside [0, %d]", t.ID, t.AvailableValue, t.OriginalValue)
	}
	return nil
}
