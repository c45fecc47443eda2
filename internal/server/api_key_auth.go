package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/crosslist/internal/observability/context"
)

// APIKeyRequired authenticates operator calls on /internal routes with the
// configured internal API key. An unset key keeps the routes closed.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	expected := strings.TrimSpace(s.cfg.InternalAPIKey)
	return func(c *gin.Context) {
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "operator", "internal_api")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
