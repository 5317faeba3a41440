package notification

import (
	"github.com/shopdome/commerce/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(func(cfg config.Config) Provider {
		if cfg.Email.SMTPHost == "" {
			return NoOp{}
		}
		return NewSMTP(SMTPConfig{
			Host:       cfg.Email.SMTPHost,
			Port:       cfg.Email.SMTPPort,
			Username:   cfg.Email.SMTPUsername,
			Password:   cfg.Email.SMTPPassword,
			From:       cfg.Email.SMTPFrom,
			AdminEmail: cfg.Email.AdminEmail,
		})
	}),
)
