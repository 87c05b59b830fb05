package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/charitydesk/internal/identity"
	"github.com/smallbiznis/charitydesk/internal/observability/logger"
	"go.uber.org/zap"
)

const contextIdentityKey = "identity"

// AuthRequired verifies the bearer token and stores the caller identity on the context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := identity.Authenticate(c.Request.Context(), s.identity, c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextIdentityKey, id)
		c.Next()
	}
}

func callerIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(contextIdentityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// RateLimit applies the per-IP token bucket for endpoint. Limiter failures let the request through.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed, allowing request",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if res.Allowed {
			c.Next()
			return
		}

		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		s.obsMetrics.RecordRateLimited(ctx, endpoint)
		AbortWithError(c, ErrRateLimited)
	}
}
