// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file bridges the per-account class limiter into the routing layer.
// Each route group is tagged with the action class whose budget it consumes
// (read, play or admin); denials return 429 with the seconds the caller has
// to wait before a retry can succeed.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/retroplay/arcade-backend/internal/limiter"
)

// ClassLimit returns a Gin middleware that charges the request against the
// caller's budget for the given class. Idempotent replays bypass the gate
// the same way they bypass the edge token bucket.
func ClassLimit(l *limiter.Limiter, class limiter.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || IsRateBypass(c) {
			c.Next()
			return
		}

		d := l.Check(accountIDFromCtx(c), class)
		if d.Allowed {
			c.Next()
			return
		}

		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":          c.Writer.Header().Get("X-Request-ID"),
			"code":                "too_many_requests",
			"message":             "rate limit exceeded for " + string(class) + " actions",
			"retry_after_seconds": secs,
		})
	}
}
