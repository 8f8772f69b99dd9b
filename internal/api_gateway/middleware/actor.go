package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ActorIDHeader carries the id of the party performing the request
	ActorIDHeader = "X-Actor-ID"

	// ActorIDKey is the key used to store the parsed actor in the context
	ActorIDKey = "actor_id"
)

// ActorID parses X-Actor-ID when present. A malformed header is rejected.
func ActorID() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(ActorIDHeader)
		if raw == "" {
			c.Next()
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "BAD_REQUEST", "message": "invalid " + ActorIDHeader + " header"},
			})
			return
		}
		c.Set(ActorIDKey, id)
		c.Next()
	}
}

// GetActorID returns the actor stored by ActorID
func GetActorID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(ActorIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}
