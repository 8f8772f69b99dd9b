package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 envelope and logs it with the
// route, correlation id and acting party. http.ErrAbortHandler is re-raised.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			correlationID := GetCorrelationID(c)
			attrs := []any{
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"route", c.FullPath(),
			}
			if correlationID != "" {
				attrs = append(attrs, "correlation_id", correlationID)
			}
			if actor, ok := GetActorID(c); ok {
				attrs = append(attrs, "actor_id", actor.String())
			}
			logger.Error("Panic recovered", attrs...)

			response := gin.H{
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID != "" {
				response["correlation_id"] = correlationID
			}
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response)
		}()

		c.Next()
	}
}
