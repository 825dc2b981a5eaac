package catalog

import (
	"github.com/tollwaylabs/tollway/internal/catalog/repository"
	"github.com/tollwaylabs/tollway/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
