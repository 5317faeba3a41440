package order

import (
	"github.com/shopdome/commerce/internal/order/repository"
	"github.com/shopdome/commerce/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
