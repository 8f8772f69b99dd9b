package collaborators

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/google/uuid"
)

// SandboxValidator approves documents that carry a name, a kind and a URL.
// Confidence is the share of approved documents.
type SandboxValidator struct {
	logger *slog.Logger
}

func NewSandboxValidator(logger *slog.Logger) *SandboxValidator {
	return &SandboxValidator{logger: logger}
}

func (v *SandboxValidator) Validate(ctx context.Context, documents []title.Document, titleType title.Type) (ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return ValidationResult{}, err
	}
	if len(documents) == 0 {
		return ValidationResult{Justification: "no documents supplied"}, nil
	}

	details := make([]title.DocumentVerdict, 0, len(documents))
	var approved int
	var problems []string
	for _, d := range documents {
		verdict := title.DocumentVerdict{DocumentID: d.ID, Approved: true}
		switch {
		case strings.TrimSpace(d.URL) == "":
			verdict.Approved, verdict.Note = false, "document has no file"
		case strings.TrimSpace(d.Kind) == "":
			verdict.Approved, verdict.Note = false, "document kind is missing"
		}
		if verdict.Approved {
			approved++
		} else {
			problems = append(problems, d.Name+": "+verdict.Note)
		}
		details = append(details, verdict)
	}

	result := ValidationResult{
		Approved:   approved == len(documents),
		Confidence: float64(approved) / float64(len(documents)),
		Details:    details,
	}
	if result.Approved {
		result.Justification = fmt.Sprintf("all %d documents accepted for %s", approved, titleType)
	} else {
		result.Justification = strings.Join(problems, "; ")
	}

	v.logger.Debug("Sandbox validation finished",
		"title_type", string(titleType),
		"approved", result.Approved,
		"confidence", result.Confidence,
	)
	return result, nil
}

// SandboxTokenizer derives token identifiers from the title id and number
type SandboxTokenizer struct {
	contractRef string
	logger      *slog.Logger
}

func NewSandboxTokenizer(logger *slog.Logger, contractRef string) *SandboxTokenizer {
	if contractRef == "" {
		contractRef = "sandbox-credit-title-registry"
	}
	return &SandboxTokenizer{contractRef: contractRef, logger: logger}
}

func (t *SandboxTokenizer) Mint(ctx context.Context, tt *title.Title) (MintResult, error) {
	if err := ctx.Err(); err != nil {
		return MintResult{}, err
	}
	sum := sha256.Sum256([]byte(tt.ID.String() + "|" + tt.Number))
	digest := hex.EncodeToString(sum[:])

	result := MintResult{
		TokenID:     "tok-" + digest[:16],
		ContractRef: t.contractRef,
		TxHash:      "0x" + digest,
	}
	t.logger.Debug("Sandbox token minted", "title_id", tt.ID.String(), "token_id", result.TokenID)
	return result, nil
}

type sandboxPayment struct {
	amount int64
	method shared.PaymentMethod
	status shared.PaymentStatus
}

// SandboxGateway confirms every payment it initiated unless a test or operator
// overrides the status with SetStatus.
type SandboxGateway struct {
	mu       sync.Mutex
	payments map[string]*sandboxPayment
	logger   *slog.Logger
}

func NewSandboxGateway(logger *slog.Logger) *SandboxGateway {
	return &SandboxGateway{
		payments: make(map[string]*sandboxPayment),
		logger:   logger,
	}
}

func (g *SandboxGateway) Initiate(ctx context.Context, amount int64, method shared.PaymentMethod) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", fmt.Errorf("sandbox gateway: amount %d must be positive", amount)
	}
	if !method.Valid() {
		return "", fmt.Errorf("sandbox gateway: unsupported method %q", method)
	}

	ref := "PAY-" + strings.ToUpper(uuid.New().String())
	g.mu.Lock()
	g.payments[ref] = &sandboxPayment{amount: amount, method: method, status: shared.PaymentStatusConfirmed}
	g.mu.Unlock()

	g.logger.Debug("Sandbox payment initiated", "payment_ref", ref, "amount", amount, "method", string(method))
	return ref, nil
}

func (g *SandboxGateway) Confirm(ctx context.Context, paymentRef string) (shared.PaymentStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[paymentRef]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPaymentReference, paymentRef)
	}
	return p.status, nil
}

// SetStatus overrides what Confirm reports for ref
func (g *SandboxGateway) SetStatus(ref string, status shared.PaymentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[ref]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPaymentReference, ref)
	}
	p.status = status
	return nil
}

var (
	_ Validator      = (*SandboxValidator)(nil)
	_ Tokenizer      = (*SandboxTokenizer)(nil)
	_ PaymentGateway = (*SandboxGateway)(nil)
)
