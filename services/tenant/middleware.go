package tenant

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const HeaderTenantID = "X-Tenant-ID"

// Resolve loads the tenant named by the X-Tenant-ID header onto the request
// context. Resolution is deliberately lenient here: a missing or unknown
// tenant is reported downstream by the authorization engine, which owns the
// denial taxonomy and the audit trail.
func Resolve(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderTenantID)
		if id == "" {
			c.Next()
			return
		}

		t, err := svc.FindByID(c.Request.Context(), id)
		if err != nil {
			zap.L().Error("tenant resolution failed", zap.String("tenant_id", id), zap.Error(err))
			c.Next()
			return
		}

		if t != nil && t.Status == Active {
			c.Request = c.Request.WithContext(ContextWithTenant(c.Request.Context(), t))
		}

		c.Next()
	}
}
