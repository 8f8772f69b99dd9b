package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/credit-title-marketplace/internal/api_gateway/middleware"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/marketplace/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// forbiddenCodes are precondition codes that mean the actor has no right to act
var forbiddenCodes = map[string]bool{
	shared.ErrNotTitleOwner.Code:       true,
	shared.ErrNotListingSeller.Code:    true,
	shared.ErrNotProposalBuyer.Code:    true,
	shared.ErrNotTransactionParty.Code: true,
	shared.ErrNotAccountOwner.Code:     true,
}

// badInputCodes are precondition codes caused by the request body itself
var badInputCodes = map[string]bool{
	shared.ErrInvalidInput.Code:   true,
	shared.ErrInvalidAmount.Code:  true,
	shared.ErrInvalidPricing.Code: true,
}

// respondServiceError maps an engine error onto the HTTP response
func respondServiceError(c *gin.Context, logger *slog.Logger, err error, msg string) {
	var pe *shared.PreconditionError
	var nf shared.ErrNotFound
	var cm shared.ErrConcurrentModification

	switch {
	case errors.As(err, &nf):
		RespondNotFound(c, nf.Error())
	case errors.As(err, &cm):
		RespondWithError(c, http.StatusConflict, "CONCURRENT_MODIFICATION", cm.Error())
	case errors.As(err, &pe):
		switch {
		case pe.Code == shared.ErrComplianceHoldActive.Code:
			RespondWithError(c, http.StatusConflict, pe.Code, pe.Message)
		case forbiddenCodes[pe.Code]:
			RespondWithError(c, http.StatusForbidden, pe.Code, pe.Message)
		case badInputCodes[pe.Code]:
			RespondWithError(c, http.StatusBadRequest, pe.Code, pe.Message)
		default:
			RespondUnprocessable(c, pe.Code, pe.Message)
		}
	case errors.Is(err, shared.ErrCollaboratorTimeout), errors.Is(err, context.DeadlineExceeded):
		logger.Warn(msg, "error", err)
		RespondWithError(c, http.StatusGatewayTimeout, "COLLABORATOR_TIMEOUT", "an external service did not answer in time")
	case errors.Is(err, shared.ErrCollaboratorUnavailable):
		logger.Warn(msg, "error", err)
		RespondWithError(c, http.StatusServiceUnavailable, "COLLABORATOR_UNAVAILABLE", "an external service is unavailable, retry later")
	default:
		logger.Error(msg, "error", err)
		RespondInternalError(c)
	}
}

// requestContext carries the request correlation id into emitted events
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if id := middleware.GetCorrelationID(c); id != "" {
		ctx = service.WithCorrelationID(ctx, id)
	}
	return ctx
}

// requireActor returns the acting party or answers 401
func requireActor(c *gin.Context) (uuid.UUID, bool) {
	actor, ok := middleware.GetActorID(c)
	if !ok {
		RespondUnauthorized(c, middleware.ActorIDHeader+" header is required")
		return uuid.Nil, false
	}
	return actor, true
}

// pathID parses the named path parameter or answers 400
func pathID(c *gin.Context, logger *slog.Logger, name, label string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("Invalid "+label+" ID", "id", raw, "error", err)
		RespondBadRequest(c, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the body into req or answers 400
func bindJSON(c *gin.Context, logger *slog.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
