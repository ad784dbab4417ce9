package middleware

import (
	"net/http"

	"github.com/GoPolymarket/fundgate/internal/config"
	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	HeaderGatewayKey    = "X-Gateway-Key"
	ContextPrincipalKey = "principal"
)

func AuthMiddleware(cfg *config.Config, registry *service.PrincipalRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			if cfg != nil && !cfg.Auth.RequireAPIKey {
				if p := registry.Default(); p != nil {
					c.Set(ContextPrincipalKey, p)
					c.Next()
					return
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		p, ok := registry.ByAPIKeyWithFallback(c.Request.Context(), apiKey)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal AuthMiddleware attached to c.
func PrincipalFrom(c *gin.Context) (*model.Principal, bool) {
	val, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := val.(*model.Principal)
	return p, ok
}
