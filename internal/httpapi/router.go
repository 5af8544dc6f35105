package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"careplane/pkg/config"
	"careplane/pkg/health"
	"careplane/pkg/middleware"
	"careplane/pkg/ratelimit"
	"careplane/services/authz"
	"careplane/services/identity"
	"careplane/services/tenant"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

type RouterParams struct {
	fx.In
	Engine   *gin.Engine
	Config   *config.Config
	Handler  *Handler
	Health   health.HealthService
	Counter  ratelimit.Counter
	Identity *identity.Service
	Tenants  *tenant.Service
}

func RegisterRoutes(p RouterParams) {
	r := p.Engine

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1",
		middleware.Error(),
		middleware.ExtractRequestMeta(),
		tenant.Resolve(p.Tenants),
		identity.Authenticate(p.Identity),
	)

	loginGuard := ratelimit.Guard(p.Counter, p.Config.RateLimit.Limit, p.Config.RateLimit.Window, loginKey)
	v1.POST("/auth/login", loginGuard, p.Handler.Login)

	v1.POST("/access/check", p.Handler.CheckAccess)

	apps := v1.Group("/apps/:app")
	apps.GET("/entitlement", authz.RequireApplication(p.Handler.engine, ""), p.Handler.Entitlement)

	admin := v1.Group("", p.Handler.RequireTenantAdmin)
	{
		admin.POST("/grants", p.Handler.GrantAccess)
		admin.DELETE("/grants", p.Handler.RevokeAccess)
		admin.POST("/pricing", p.Handler.SchedulePrice)
		admin.GET("/licenses", p.Handler.ListLicenses)
		admin.GET("/audit", p.Handler.RecentDecisions)
	}

	platform := v1.Group("", p.Handler.RequirePlatformAdmin)
	{
		platform.POST("/applications", p.Handler.RegisterApplication)
		platform.POST("/tenants", p.Handler.CreateTenant)
		platform.POST("/licenses", p.Handler.ActivateLicense)
	}
}

// loginKey buckets login attempts by client address. Credential bodies are
// JSON, so the key deliberately stays independent of the claimed identity.
func loginKey(c *gin.Context) string {
	meta := middleware.RequestMetaFromContext(c.Request.Context())
	return "login:" + meta.IP
}
