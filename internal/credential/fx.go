package credential

import (
	"github.com/tollwaylabs/tollway/internal/cache"
	"github.com/tollwaylabs/tollway/internal/credential/repository"
	"github.com/tollwaylabs/tollway/internal/credential/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credential.service",
	fx.Provide(cache.NewCredentialResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
