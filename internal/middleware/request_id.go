package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ephemeral-chat/internal/observability"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// RequestID assigns every request an id, taken from X-Request-ID when the
// caller supplies one, and propagates it to logs and published events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := observability.RequestIDFromRequest(c.Request)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(observability.RequestIDHeader, id)
		}
		c.Set(RequestIDKey, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Header(observability.RequestIDHeader, id)
		c.Next()
	}
}
