package config

import "go.uber.org/fx"

// Module provides environment configuration and the tier-catalog holder.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		DBConfig,
		NewCatalogConfigHolder,
	),
)
