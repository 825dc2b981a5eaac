package inventory

import (
	"github.com/tollwaylabs/tollway/internal/inventory/repository"
	"github.com/tollwaylabs/tollway/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
