package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tejash-sr/agri/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates the caller's correlation identifier, minting one when
// the header is absent. The ID rides the request context so logger.WithContext
// picks it up everywhere downstream.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
