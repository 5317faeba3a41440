package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopdome/commerce/internal/config"
	"github.com/shopdome/commerce/internal/payment/adapters"
	paymentdomain "github.com/shopdome/commerce/internal/payment/domain"
	paymentservice "github.com/shopdome/commerce/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	secrets    map[string]string
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		secrets: map[string]string{
			"stripe": strings.TrimSpace(p.Cfg.Checkout.StripeWebhookSecret),
		},
	}
}

// IngestWebhook verifies a raw provider delivery, normalizes it, and
// hands it to the payment service. An unrecognized but authentic event
// type is acknowledged without side effects. The returned string is
// the provider's own event type, echoed in the acknowledgement.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return "", paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return "", paymentdomain.ErrInvalidPayload
	}

	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &envelope)

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   map[string]any{"webhook_secret": s.secrets[provider]},
	})
	if err != nil {
		return "", err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return "", err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("provider event ignored",
				zap.String("provider", provider),
				zap.String("event_type", envelope.Type),
			)
			return envelope.Type, nil
		}
		return "", err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	err = s.paymentSvc.ProcessEvent(ctx, event, payload)
	if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		s.log.Debug("provider event redelivered",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
		)
		return envelope.Type, nil
	}
	if err != nil {
		return "", err
	}
	return envelope.Type, nil
}
