package identity

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Authenticate extracts and verifies the bearer token, attaching the
// principal to the request context. Requests without an Authorization header
// pass through unauthenticated so the decision engine can record the denial;
// a header that fails verification is rejected here.
func Authenticate(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		raw := strings.TrimPrefix(header, "Bearer ")
		principal, err := svc.Extract(c.Request.Context(), raw)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
