package customer

import (
	"github.com/shopdome/commerce/internal/customer/repository"
	"github.com/shopdome/commerce/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
