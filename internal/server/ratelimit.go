package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hourbill/internal/auditcontext"
	"github.com/smallbiznis/hourbill/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	scopeGenerate = "generate"
	scopeImport   = "import"
)

// rateLimit throttles a route per actor, falling back to the client IP for anonymous calls.
// Limiter failures let the request through.
func (s *Server) rateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, subject := auditcontext.ActorFromContext(c.Request.Context())
		if subject == "" {
			subject = c.ClientIP()
		}

		res, err := s.limiter.Allow(c.Request.Context(), scope, subject)
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			seconds := int(math.Ceil(res.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ratelimit.ErrRateLimited)
			return
		}
		c.Next()
	}
}
