package payment

import (
	"github.com/shopdome/commerce/internal/payment/adapters"
	"github.com/shopdome/commerce/internal/payment/adapters/stripe"
	"github.com/shopdome/commerce/internal/payment/repository"
	paymentservice "github.com/shopdome/commerce/internal/payment/service"
	"github.com/shopdome/commerce/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
