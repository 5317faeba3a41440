package events

import (
	"context"

	"github.com/shopdome/commerce/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
		if len(cfg.Events.Brokers) == 0 {
			return NoOp{}, nil
		}

		publisher, closeFn, err := NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.OrderTopic, log)
		if err != nil {
			return nil, err
		}

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closeFn()
			},
		})
		return publisher, nil
	}),
)
