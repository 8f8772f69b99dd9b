package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/credit-title-marketplace/internal/domain/listing"
	"github.com/credit-title-marketplace/internal/domain/title"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListingHandler handles HTTP requests for the listing engine
type ListingHandler struct {
	listingService  service.ListingService
	proposalService service.ProposalService
	logger          *slog.Logger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(logger *slog.Logger, listingService service.ListingService, proposalService service.ProposalService) *ListingHandler {
	return &ListingHandler{
		listingService:  listingService,
		proposalService: proposalService,
		logger:          logger,
	}
}

// Create offers one of the actor's titles
func (h *ListingHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req CreateListingRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	titleID, err := uuid.Parse(req.TitleID)
	if err != nil {
		RespondBadRequest(c, "Invalid title ID")
		return
	}

	l, err := h.listingService.CreateListing(requestContext(c), titleID, actor, listing.NewListingParams{
		Pricing: listing.Pricing{
			OriginalValue:  req.OriginalValue,
			MinimumValue:   req.MinimumValue,
			SuggestedValue: req.SuggestedValue,
		},
		Modality:     listing.Modality(req.Modality),
		ExpiresAt:    req.ExpiresAt,
		ProposalTTL:  time.Duration(req.ProposalTTLHours) * time.Hour,
		Restrictions: listing.Restrictions{Sectors: req.Sectors, Regions: req.Regions},
	})
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to create listing")
		return
	}
	RespondCreated(c, l)
}

// Search lists listings matching the query filters
func (h *ListingHandler) Search(c *gin.Context) {
	var q SearchListingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.logger.Warn("Invalid search parameters", "error", err)
		RespondBadRequest(c, "Invalid search parameters: "+err.Error())
		return
	}

	f := listing.Filter{
		TitleType: title.Type(q.Type),
		Category:  title.Category(q.Category),
		Modality:  listing.Modality(q.Modality),
		Status:    listing.Status(q.Status),
		MinPrice:  q.MinPrice,
		MaxPrice:  q.MaxPrice,
		Sector:    q.Sector,
		Region:    q.Region,
		SortBy:    listing.SortField(q.SortBy),
		Desc:      q.Desc,
		Limit:     q.PerPage,
		Offset:    (q.Page - 1) * q.PerPage,
	}
	if q.SellerID != "" {
		f.SellerID = uuid.MustParse(q.SellerID)
	}

	listings, err := h.listingService.SearchListings(c.Request.Context(), f)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to search listings")
		return
	}
	RespondOK(c, listings)
}

// GetByID retrieves a listing with its effective status
func (h *ListingHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "listing")
	if !ok {
		return
	}
	l, err := h.listingService.GetListing(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to get listing")
		return
	}
	RespondOK(c, l)
}

// Pause stops a listing from accepting proposals
func (h *ListingHandler) Pause(c *gin.Context) {
	h.toggle(c, h.listingService.PauseListing, "Failed to pause listing")
}

// Resume reopens a paused listing
func (h *ListingHandler) Resume(c *gin.Context) {
	h.toggle(c, h.listingService.ResumeListing, "Failed to resume listing")
}

func (h *ListingHandler) toggle(c *gin.Context, op func(ctx context.Context, id, actor uuid.UUID) (*listing.Listing, error), msg string) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "id", "listing")
	if !ok {
		return
	}
	l, err := op(requestContext(c), id, actor)
	if err != nil {
		respondServiceError(c, h.logger, err, msg)
		return
	}
	RespondOK(c, l)
}

// Proposals lists every proposal made on a listing
func (h *ListingHandler) Proposals(c *gin.Context) {
	id, ok := pathID(c, h.logger, "id", "listing")
	if !ok {
		return
	}
	proposals, err := h.proposalService.ListByListing(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.logger, err, "Failed to list proposals")
		return
	}
	RespondOK(c, proposals)
}
