package handler

import (
	"net/http"

	"github.com/credit-title-marketplace/internal/api_gateway/middleware"
	"github.com/gin-gonic/gin"
)

// Response is the envelope every marketplace endpoint answers with
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo carries a stable error code. Retryable marks failures of an
// external collaborator or the callback queue, where the same request may
// succeed later.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// MetaInfo describes one page of a listing search, statement or audit trail
type MetaInfo struct {
	Page       int  `json:"page,omitempty"`
	PerPage    int  `json:"per_page,omitempty"`
	TotalPages int  `json:"total_pages,omitempty"`
	TotalItems int  `json:"total_items,omitempty"`
	HasMore    bool `json:"has_more"`
}

func newMeta(page, perPage, totalItems int) *MetaInfo {
	meta := &MetaInfo{Page: page, PerPage: perPage, TotalItems: totalItems}
	if perPage > 0 {
		meta.TotalPages = (totalItems + perPage - 1) / perPage
	}
	meta.HasMore = page < meta.TotalPages
	return meta
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func respond(c *gin.Context, statusCode int, response *Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	respond(c, statusCode, &Response{Data: data})
}

// RespondWithError sends a JSON error envelope
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, &Response{Error: &ErrorInfo{
		Code:      code,
		Message:   message,
		Retryable: retryableStatus(statusCode),
	}})
}

// RespondWithPaginatedData sends one page of results with its paging metadata
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	respond(c, statusCode, &Response{Data: data, Meta: newMeta(page, perPage, totalItems)})
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted acknowledges work that completes asynchronously, such as a
// queued payment callback.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthorized is used when X-Actor-ID is missing on an actor scoped route
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

// RespondUnprocessable sends a 422 response carrying a domain rule code
func RespondUnprocessable(c *gin.Context, code, message string) {
	RespondWithError(c, http.StatusUnprocessableEntity, code, message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}
