// Package middleware holds the gin middleware chain: request ids, logging,
// CORS, rate limiting, and bearer-token authentication.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is read from the client when present so ids can be
	// traced across services, and always set on the response.
	RequestIDHeader = "X-Request-ID"

	// ContextRequestID is the gin context key the logger reads.
	ContextRequestID = "request_id"
)

// RequestID assigns every request an id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}
