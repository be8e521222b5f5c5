package middleware

import (
	"net/http"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles calls per external service, keyed by the
// :service route parameter. Limiters exist only for services; any other
// value passes through to the handler, which rejects it. A non-positive QPS
// disables it.
func RateLimitMiddleware(cfg config.RateLimitConfig, services []string) gin.HandlerFunc {
	if cfg.QPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.QPS)
		if burst < 1 {
			burst = 1
		}
	}

	// Read-only after construction.
	limiters := make(map[string]*rate.Limiter, len(services))
	for _, s := range services {
		limiters[s] = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	return func(c *gin.Context) {
		key := c.Param("service")
		limiter, ok := limiters[key]
		if !ok {
			c.Next()
			return
		}
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded for service " + key,
			})
			return
		}
		c.Next()
	}
}
