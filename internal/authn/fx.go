package authn

import (
	"github.com/tollwaylabs/tollway/internal/authn/service"
	"go.uber.org/fx"
)

var Module = fx.Module("authn.service",
	fx.Provide(service.NewEnforcer),
	fx.Provide(service.New),
)
