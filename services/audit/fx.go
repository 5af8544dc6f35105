package audit

import "go.uber.org/fx"

var Module = fx.Module("audit.module",
	fx.Provide(
		NewService,
		func(s *Service) Sink { return s },
	),
)
