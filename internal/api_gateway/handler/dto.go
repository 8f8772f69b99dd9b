package handler

import "time"

// DocumentRequest describes one supporting document of a title
type DocumentRequest struct {
	Name string `json:"name" binding:"required"`
	Kind string `json:"kind" binding:"required"`
	URL  string `json:"url"`
}

// RegisterTitleRequest represents a request to register a credit title for the actor
type RegisterTitleRequest struct {
	Number        string            `json:"number"`
	Type          string            `json:"type" binding:"required"`
	Category      string            `json:"category" binding:"required"`
	OriginalValue int64             `json:"original_value" binding:"required,gt=0"`
	IssueDate     time.Time         `json:"issue_date" binding:"required"`
	MaturityDate  time.Time         `json:"maturity_date" binding:"required"`
	IssuerName    string            `json:"issuer_name" binding:"required"`
	Debtor        string            `json:"debtor"`
	Documents     []DocumentRequest `json:"documents" binding:"dive"`
}

// ReasonRequest carries the free-text justification of cancellations and rejections
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// CreateListingRequest represents a request to offer a title on the marketplace
type CreateListingRequest struct {
	TitleID          string    `json:"title_id" binding:"required,uuid"`
	OriginalValue    int64     `json:"original_value" binding:"required,gt=0"`
	MinimumValue     int64     `json:"minimum_value" binding:"required,gt=0"`
	SuggestedValue   int64     `json:"suggested_value" binding:"required,gt=0"`
	Modality         string    `json:"modality" binding:"required"`
	ExpiresAt        time.Time `json:"expires_at" binding:"required"`
	ProposalTTLHours int       `json:"proposal_ttl_hours" binding:"min=0"`
	Sectors          []string  `json:"sectors"`
	Regions          []string  `json:"regions"`
}

// SearchListingsQuery represents the marketplace search parameters
type SearchListingsQuery struct {
	Type     string `form:"type"`
	Category string `form:"category"`
	Modality string `form:"modality"`
	Status   string `form:"status"`
	SellerID string `form:"seller_id" binding:"omitempty,uuid"`
	MinPrice int64  `form:"min_price" binding:"min=0"`
	MaxPrice int64  `form:"max_price" binding:"min=0"`
	Sector   string `form:"sector"`
	Region   string `form:"region"`
	SortBy   string `form:"sort_by"`
	Desc     bool   `form:"desc"`
	PaginationParams
}

// TermsRequest carries the commercial terms of a proposal
type TermsRequest struct {
	Installments int      `json:"installments" binding:"required,min=1"`
	DownPayment  int64    `json:"down_payment" binding:"min=0"`
	Guarantees   []string `json:"guarantees"`
	Purpose      string   `json:"purpose" binding:"required"`
}

// SubmitProposalRequest represents an offer on a listing
type SubmitProposalRequest struct {
	Value     int64        `json:"value" binding:"required,gt=0"`
	Terms     TermsRequest `json:"terms" binding:"required"`
	Message   string       `json:"message"`
	Documents []string     `json:"documents"`
}

// ReviseProposalRequest represents a buyer's revision of a pending proposal
type ReviseProposalRequest struct {
	Value   int64        `json:"value" binding:"required,gt=0"`
	Terms   TermsRequest `json:"terms" binding:"required"`
	Message string       `json:"message"`
}

// RequestPaymentRequest selects how the buyer pays a transaction
type RequestPaymentRequest struct {
	Method  string            `json:"method" binding:"required"`
	Details map[string]string `json:"details"`
}

// ConfirmPaymentRequest carries the proof of an external payment
type ConfirmPaymentRequest struct {
	Proof string `json:"proof" binding:"required"`
}

// NoteRequest carries a reviewer note
type NoteRequest struct {
	Note string `json:"note"`
}

// ResolveDisputeRequest represents the administrative decision on a dispute
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=settle cancel"`
	Note    string `json:"note"`
}

// OpenAccountRequest represents a request to open the actor's wallet
type OpenAccountRequest struct {
	Kind string `json:"kind" binding:"required,oneof=user company"`
}

// MoneyMovementRequest represents a deposit or withdrawal
type MoneyMovementRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Method string `json:"method" binding:"required"`
}

// PaymentWebhookRequest is the payload the payment gateway posts back
type PaymentWebhookRequest struct {
	Kind          string `json:"kind" binding:"required,oneof=TRANSACTION_PAYMENT DEPOSIT WITHDRAWAL"`
	PaymentRef    string `json:"payment_ref" binding:"required"`
	Status        string `json:"status" binding:"required,oneof=pending confirmed failed cancelled"`
	TransactionID string `json:"transaction_id" binding:"omitempty,uuid"`
	ProofRef      string `json:"proof_ref"`
}

// AccountResponse represents a wallet in API responses
type AccountResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Kind      string `json:"kind"`
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// WalletTransactionResponse represents a wallet movement in API responses
type WalletTransactionResponse struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	Type           string `json:"type"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	Status         string `json:"status"`
	ExternalRef    string `json:"external_ref,omitempty"`
	CounterpartRef string `json:"counterpart_ref,omitempty"`
	CreatedAt      string `json:"created_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
