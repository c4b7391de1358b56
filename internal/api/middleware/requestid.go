package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeader carries the id on both request and response.
const requestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key RequestID reads back.
const requestIDKey = "request_id"

// RequestID stamps every request with a UUID, honoring one the client
// already sent so ids correlate across proxies.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// FromContext returns the request id stamped by RequestID, or "".
func FromContext(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
