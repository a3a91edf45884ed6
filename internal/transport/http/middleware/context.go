package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys shared across the middleware chain and handlers.
const (
	// TraceIDHeader carries the trace identifier on requests and responses.
	TraceIDHeader = "X-Trace-ID"
	TraceIDKey    = "trace_id"
	UserIDKey     = "user_id"
	UserRoleKey   = "user_role"

	requestContextKey = "request_context"
)

// RequestContext carries per-request attribution. UserID is filled in later
// by RequireAuth once the caller is authenticated.
type RequestContext struct {
	TraceID   string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext seeds every request with a trace ID and a RequestContext.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID returns the trace ID seeded by EnrichContext, or "".
func GetTraceID(c *gin.Context) string {
	if value, exists := c.Get(TraceIDKey); exists {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext returns the request attribution, never nil.
func GetRequestContext(c *gin.Context) *RequestContext {
	if value, exists := c.Get(requestContextKey); exists {
		if reqCtx, ok := value.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
