package payment

import (
	"github.com/tollwaylabs/tollway/internal/payment/adapters"
	"github.com/tollwaylabs/tollway/internal/payment/adapters/stripe"
	"github.com/tollwaylabs/tollway/internal/payment/repository"
	paymentservice "github.com/tollwaylabs/tollway/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.New),
)
