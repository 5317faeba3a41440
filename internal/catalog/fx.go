package catalog

import (
	"github.com/shopdome/commerce/internal/catalog/repository"
	"github.com/shopdome/commerce/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
