package tenant

import (
	"github.com/tollwaylabs/tollway/internal/tenant/repository"
	"github.com/tollwaylabs/tollway/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
