package manager

import "go.uber.org/fx"

var Module = fx.Module("manager",
	fx.Provide(New),
)
