package middleware

import (
	"time"

	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderCorrelationID     = "X-Correlation-ID"
	ContextCorrelationIDKey = "correlation_id"
)

// CorrelationMiddleware accepts a caller-supplied correlation id or issues a
// new one, echoes it on the response and writes one access log line.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ContextCorrelationIDKey, id)
		c.Header(HeaderCorrelationID, id)

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"correlation_id", id,
			"client_ip", c.ClientIP(),
		)
	}
}

// CorrelationID returns the id set by CorrelationMiddleware, or "".
func CorrelationID(c *gin.Context) string {
	return c.GetString(ContextCorrelationIDKey)
}
