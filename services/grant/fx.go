package grant

import (
	"careplane/services/identity"

	"go.uber.org/fx"
)

var Module = fx.Module("grant.module",
	fx.Provide(
		NewService,
		func(s *Service) identity.AllowedAppLister { return s },
	),
)
