package crediting

import "go.uber.org/fx"

var Module = fx.Module("crediting.client",
	fx.Provide(NewClient),
)
