package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/shopdome/commerce/internal/catalog/domain"
	"github.com/shopdome/commerce/internal/checkout/domain"
	"github.com/shopdome/commerce/internal/config"
	customerdomain "github.com/shopdome/commerce/internal/customer/domain"
	"github.com/shopdome/commerce/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Catalog   catalogdomain.Repository
	Customers customerdomain.Service
	Provider  domain.ProviderClient
	Metrics   *metrics.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       config.CheckoutConfig
	catalog   catalogdomain.Repository
	customers customerdomain.Service
	provider  domain.ProviderClient
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("checkout.service"),
		cfg:       p.Config.Checkout,
		catalog:   p.Catalog,
		customers: p.Customers,
		provider:  p.Provider,
		metrics:   p.Metrics,
	}
}

// cartLine is the snapshot serialized into provider metadata. The
// webhook materializes the order from it, so it must carry everything
// an order item needs.
type cartLine struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.CreateSessionResponse, error) {
	resp, err := s.createSession(ctx, req)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, "error")
		return nil, err
	}
	s.metrics.RecordCheckoutSession(ctx, "created")
	return resp, nil
}

func (s *Service) createSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.CreateSessionResponse, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	email := strings.ToLower(strings.TrimSpace(req.Customer.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	if err := s.validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}

	quantities := make(map[int64]int, len(req.Items))
	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		id, err := snowflake.ParseString(strings.TrimSpace(item.ProductID))
		if err != nil || id == 0 {
			return nil, domain.ErrUnknownProduct
		}
		if _, ok := quantities[id.Int64()]; !ok {
			ids = append(ids, id.Int64())
		}
		quantities[id.Int64()] += item.Quantity
	}

	products, err := s.catalog.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, domain.ErrUnknownProduct
	}

	var subtotal int64
	lines := make([]domain.SessionLine, 0, len(products))
	snapshot := make([]cartLine, 0, len(products))
	for _, p := range products {
		if !p.Active {
			return nil, domain.ErrInactiveProduct
		}
		if !strings.EqualFold(p.Currency, s.cfg.Currency) {
			return nil, domain.ErrCurrencyMismatch
		}
		qty := quantities[p.ID]
		subtotal += p.UnitPrice * int64(qty)
		lines = append(lines, domain.SessionLine{
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  qty,
		})
		snapshot = append(snapshot, cartLine{
			ProductID: snowflake.ID(p.ID).String(),
			SKU:       p.SKU,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  qty,
		})
	}

	shippingFee := s.cfg.ShippingFee
	taxAmount := subtotal * int64(s.cfg.TaxRateBps) / 10_000
	totalAmount := subtotal + shippingFee + taxAmount

	cust, err := s.customers.Upsert(ctx, customerdomain.UpsertCustomerRequest{
		Email: email,
		Name:  req.Customer.Name,
		Phone: req.Customer.Phone,
	})
	if err != nil {
		return nil, err
	}

	orderNumber, err := generateOrderNumber()
	if err != nil {
		return nil, err
	}

	cartJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	addressJSON, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateSession(ctx, domain.ProviderSessionRequest{
		OrderNumber:   orderNumber,
		Currency:      s.cfg.Currency,
		CustomerEmail: email,
		Lines:         lines,
		ShippingFee:   shippingFee,
		TaxAmount:     taxAmount,
		Metadata: map[string]string{
			"order_number":     orderNumber,
			"customer_id":      cust.ID.String(),
			"customer_name":    cust.Name,
			"customer_phone":   cust.Phone,
			"cart":             string(cartJSON),
			"shipping_address": string(addressJSON),
			"subtotal":         strconv.FormatInt(subtotal, 10),
			"shipping_fee":     strconv.FormatInt(shippingFee, 10),
			"tax_amount":       strconv.FormatInt(taxAmount, 10),
			"total_amount":     strconv.FormatInt(totalAmount, 10),
			"currency":         strings.ToLower(s.cfg.Currency),
		},
	})
	if err != nil {
		s.log.Error("provider session failed",
			zap.String("order_number", orderNumber),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("checkout session created",
		zap.String("order_number", orderNumber),
		zap.String("session_id", session.ID),
		zap.Int64("total_amount", totalAmount),
	)

	return &domain.CreateSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		OrderNumber: orderNumber,
		Currency:    strings.ToLower(s.cfg.Currency),
		Subtotal:    subtotal,
		ShippingFee: shippingFee,
		TaxAmount:   taxAmount,
		TotalAmount: totalAmount,
	}, nil
}

func (s *Service) validateAddress(addr domain.ShippingAddress) error {
	if strings.TrimSpace(addr.Line1) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" ||
		strings.TrimSpace(addr.Country) == "" {
		return domain.ErrInvalidAddress
	}

	if len(s.cfg.ShippingCountries) == 0 {
		return nil
	}
	country := strings.ToUpper(strings.TrimSpace(addr.Country))
	for _, allowed := range s.cfg.ShippingCountries {
		if strings.ToUpper(allowed) == country {
			return nil
		}
	}
	return domain.ErrUnsupportedCountry
}

// orderNumberAlphabet omits easily confused characters so numbers can
// be read aloud over support calls.
const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateOrderNumber() (string, error) {
	suffix := make([]byte, 4)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("SDM-%s-%s", time.Now().UTC().Format("20060102"), suffix), nil
}
