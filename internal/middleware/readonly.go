package middleware

import (
	"net/http"

	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// ReadOnlyMiddleware rejects every mutating request except oracle price
// posts, so valuations stay current while the ledger is frozen.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		if c.Request.Method == http.MethodPost && c.FullPath() == "/v1/admin/prices" {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}
