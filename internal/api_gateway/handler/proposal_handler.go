package handler

import (
	"context"
	"log/slog"

	"github.com/credit-title-marketplace/internal/domain/proposal"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProposalHandler handles HTTP requests for negotiations
type ProposalHandler struct {
	proposalService service.ProposalService
	logger          *slog.Logger
}

// NewProposalHandler creates a new proposal handler
func NewProposalHandler(logger *slog.Logger, proposalService service.ProposalService) *ProposalHandler {
	return &ProposalHandler{
		proposalService: proposalService,
		logger:          logger,
	}
}

func (r TermsRequest) toTerms() proposal.Terms {
	return proposal.Terms{
		Installments: r.Installments,
		DownPayment:  r.DownPayment,
		Guarantees:   r.Guarantees,
		Purpose:      proposal.Purpose(r.Purpose),
	}
}

// Submit places the actor's offer on a listing
func (h *ProposalHandler) Submit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	listingID, ok := pathID(c, h.logger, "id", "listing")
	if !ok {
		return
	}
	var req SubmitProposalRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	p, err := h.proposalService.SubmitProposal(requestContext(c), listingID, proposal.NewProposalParams{
		BuyerID:   actor,
		Value:     req.Value,
		Terms:     req.Terms.toTerms(),
		Message:   req.Message,
		Documents: req.Documents,
	})
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to submit proposal")
		return
	}
	RespondCreated(c, p)
}

// Revise replaces the value and terms of a pending proposal
func (h *ProposalHandler) Revise(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "proposal")
	if !ok {
		return
	}
	var req ReviseProposalRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	p, err := h.proposalService.ReviseProposal(requestContext(c), id, actor, req.Value, req.Terms.toTerms(), req.Message)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to revise proposal")
		return
	}
	RespondOK(c, p)
}

// Accept closes the negotiation and opens the transaction
func (h *ProposalHandler) Accept(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "proposal")
	if !ok {
		return
	}
	tx, err := h.proposalService.AcceptProposal(requestContext(c), id, actor)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to accept proposal")
		return
	}
	RespondCreated(c, tx)
}

// Reject declines a pending proposal on the seller's behalf
func (h *ProposalHandler) Reject(c *gin.Context) {
	h.decide(c, h.proposalService.RejectProposal, "Failed to reject proposal")
}

// Cancel withdraws a pending proposal on the buyer's behalf
func (h *ProposalHandler) Cancel(c *gin.Context) {
	h.decide(c, h.proposalService.CancelProposal, "Failed to cancel proposal")
}

func (h *ProposalHandler) decide(c *gin.Context, op func(ctx context.Context, id, actor uuid.UUID, reason string) (*proposal.Proposal, error), msg string) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "proposal")
	if !ok {
		return
	}
	var req ReasonRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := op(requestContext(c), id, actor, req.Reason)
	if err != nil {
		respondServiceError(c, h.logger, err, msg)
		return
	}
	RespondOK(c, p)
}
