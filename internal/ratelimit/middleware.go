package ratelimit

import (
	"net/http"

	"github.com/Juls95/Trinit-AI/internal/logger"
	"github.com/Juls95/Trinit-AI/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LimitedMessage is returned with 429 responses.
const LimitedMessage = "Rate limit exceeded. Please wait 1 minute."

// Middleware rejects requests over the limit with 429. key extracts the
// limit key from the request; an empty key skips limiting. Store failures
// are logged and the request is let through.
func Middleware(l *Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}

		ok, err := l.Allow(c.Request.Context(), k)
		if err != nil {
			logger.FromGin(c).Warn("rate limit store unavailable", zap.String("key", k), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			util.Error(c, http.StatusTooManyRequests, util.CodeRateLimited, LimitedMessage)
			c.Abort()
			return
		}
		c.Next()
	}
}
