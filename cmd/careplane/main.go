package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"careplane/internal/httpapi"
	"careplane/pkg/config"
	"careplane/pkg/db"
	"careplane/pkg/gen"
	"careplane/pkg/health"
	"careplane/pkg/logger"
	"careplane/pkg/otelcol"
	"careplane/pkg/ratelimit"
	"careplane/pkg/redis"
	"careplane/pkg/server"
	"careplane/services/application"
	"careplane/services/audit"
	"careplane/services/authz"
	"careplane/services/grant"
	"careplane/services/identity"
	"careplane/services/license"
	"careplane/services/pricing"
	"careplane/services/tenant"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		ratelimit.Module,
		health.Module,

		application.Module,
		tenant.Module,
		identity.Module,
		pricing.Module,
		license.Module,
		grant.Module,
		audit.Module,
		authz.Module,

		server.Module,
		httpapi.Module,
		fxLogger,
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
