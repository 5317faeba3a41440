package ratelimit

import (
	"context"

	"github.com/shopdome/commerce/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *CheckoutLimiter {
		if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
			return nil
		}

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("rate limit redis unreachable", zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})

		return NewCheckoutLimiter(
			NewTokenBucket(client),
			cfg.RateLimit.CheckoutRate,
			cfg.RateLimit.CheckoutBurst,
		)
	}),
)
