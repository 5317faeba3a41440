package checkout

import (
	"github.com/shopdome/commerce/internal/checkout/domain"
	"github.com/shopdome/commerce/internal/checkout/service"
	"github.com/shopdome/commerce/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(func(cfg config.Config) domain.ProviderClient {
		return service.NewStripeClient(
			cfg.Checkout.StripeAPIKey,
			cfg.Checkout.SuccessURL,
			cfg.Checkout.CancelURL,
		)
	}),
	fx.Provide(service.New),
)
