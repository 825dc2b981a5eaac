package subscription

import (
	"github.com/tollwaylabs/tollway/internal/subscription/repository"
	"github.com/tollwaylabs/tollway/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
