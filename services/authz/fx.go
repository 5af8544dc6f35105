package authz

import (
	"careplane/services/grant"

	"go.uber.org/fx"
)

var Module = fx.Module("authz.module",
	fx.Provide(
		NewDefaultRoleTable,
		func(s *grant.Service) GrantChecker { return s },
		NewEngine,
	),
)
