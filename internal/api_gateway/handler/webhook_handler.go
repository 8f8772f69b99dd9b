package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/credit-title-marketplace/internal/api_gateway/middleware"
	"github.com/credit-title-marketplace/internal/domain/shared"
	"github.com/credit-title-marketplace/internal/platform/messaging/producers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler accepts payment gateway callbacks and queues them for the settlement worker
type WebhookHandler struct {
	publisher producers.MessagePublisher
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, publisher producers.MessagePublisher) *WebhookHandler {
	return &WebhookHandler{publisher: publisher, logger: logger}
}

// PaymentCallback enqueues the callback keyed by payment reference, so redeliveries
// of one reference are applied in order
func (h *WebhookHandler) PaymentCallback(c *gin.Context) {
	var req PaymentWebhookRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	cb := shared.PaymentCallback{
		Kind:          shared.CallbackKind(req.Kind),
		PaymentRef:    req.PaymentRef,
		Status:        shared.PaymentStatus(req.Status),
		ProofRef:      req.ProofRef,
		CorrelationID: middleware.GetCorrelationID(c),
		Timestamp:     time.Now().UTC(),
	}
	if req.TransactionID != "" {
		cb.TransactionID = uuid.MustParse(req.TransactionID)
	}

	if err := h.publisher.Publish(c.Request.Context(), cb.PaymentRef, cb); err != nil {
		h.logger.Error("Failed to enqueue payment callback", "payment_ref", cb.PaymentRef, "error", err)
		RespondWithError(c, http.StatusServiceUnavailable, "CALLBACK_QUEUE_UNAVAILABLE", "payment callback could not be queued, retry later")
		return
	}

	h.logger.Info("Queued payment callback", "payment_ref", cb.PaymentRef, "kind", req.Kind, "status", req.Status)
	RespondAccepted(c, gin.H{"payment_ref": cb.PaymentRef, "status": "QUEUED"})
}
