package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejash-sr/agri/internal/infra/telemetry"
)

// Metrics records request counts and latencies on the shared collectors.
func Metrics(m *telemetry.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		m.RequestsTotal.WithLabelValues(method, route, status).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
