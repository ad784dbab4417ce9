package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards the operator routes: price posting and wallet
// credits.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin key not configured"})
			c.Abort()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Auth.AdminKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
