package usage

import (
	"github.com/tollwaylabs/tollway/internal/usage/repository"
	"github.com/tollwaylabs/tollway/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
