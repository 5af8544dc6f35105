package authz

import (
	"github.com/gin-gonic/gin"

	"careplane/pkg/middleware"
	"careplane/services/identity"
	"careplane/services/tenant"
)

// RequireApplication guards a route group behind a full authorization check
// for the application named by the :app route parameter. requiredRole may be
// empty when any granted user passes. The resulting decision is stored on
// the gin context for handlers.
func RequireApplication(engine *Engine, requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		req := Request{
			AppSlug:      c.Param("app"),
			RequiredRole: requiredRole,
			Meta:         middleware.RequestMetaFromContext(ctx),
		}
		if p, ok := identity.PrincipalFromContext(ctx); ok {
			req.Principal = p
		}
		if t, ok := tenant.FromContext(ctx); ok {
			req.Tenant = t
		}

		decision, err := engine.Authorize(ctx, req)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		setDecision(c, decision)
		c.Next()
	}
}
