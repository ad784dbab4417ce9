package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const ContextRateLimiter = "rate_limiter"

// RateLimitMiddleware admits a request against its principal's token bucket
// and must run after AuthMiddleware. Admission pays for one operation; a
// batch handler charges the rest with ChargeOperations.
func RateLimitMiddleware(registry *service.PrincipalRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		limiter := registry.Limiter(p.ID)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			return
		}

		c.Set(ContextRateLimiter, limiter)
		c.Next()
	}
}

// ChargeOperations draws every operation of a batch after the first from the
// bucket the request was admitted against. A refused charge consumes nothing.
func ChargeOperations(c *gin.Context, ops int) error {
	v, ok := c.Get(ContextRateLimiter)
	if !ok || ops <= 1 {
		return nil
	}
	limiter := v.(*rate.Limiter)
	if limiter.AllowN(time.Now(), ops-1) {
		return nil
	}
	c.Header("Retry-After", "1")
	return apperrors.New(apperrors.ErrRateLimited,
		fmt.Sprintf("batch of %d operations exceeds the rate limit (burst %d)", ops, limiter.Burst()), nil)
}
