package middleware

import (
	"time"

	"github.com/GoPolymarket/fundgate/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		// route template, so fund and order keys do not explode the label set
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(duration)
	}
}
