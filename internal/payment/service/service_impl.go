package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/internal/events"
	"github.com/shopdome/commerce/internal/notification"
	"github.com/shopdome/commerce/internal/observability/metrics"
	orderdomain "github.com/shopdome/commerce/internal/order/domain"
	paymentdomain "github.com/shopdome/commerce/internal/payment/domain"
	"github.com/shopdome/commerce/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	Orders     orderdomain.Repository
	Notifier   notification.Provider
	Publisher  events.Publisher
	ObsMetrics *metrics.Metrics
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	orders     orderdomain.Repository
	notifier   notification.Provider
	publisher  events.Publisher
	obsMetrics *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		orders:     p.Orders,
		notifier:   p.Notifier,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent applies a verified provider event to the order it
// belongs to. The event record is inserted before any state change so
// redelivered events short-circuit on the unique constraint.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := time.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	orderID, err := s.applyEvent(ctx, event)
	if err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, orderID, now); err != nil {
		return err
	}

	if inserted && s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}

	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted, paymentdomain.EventTypePaymentSucceeded, paymentdomain.EventTypeRefunded:
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		if strings.TrimSpace(event.Currency) == "" {
			return paymentdomain.ErrInvalidCurrency
		}
	case paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) applyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*snowflake.ID, error) {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case paymentdomain.EventTypePaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case paymentdomain.EventTypePaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case paymentdomain.EventTypeRefunded:
		return s.handleRefunded(ctx, event)
	default:
		return nil, paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *paymentdomain.PaymentEvent) (*snowflake.ID, error) {
	order, err := s.orders.FindBySession(ctx, s.db, event.Provider, event.ProviderSessionID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		order, err = s.materializeOrder(ctx, event)
		if err != nil {
			return nil, err
		}
	}

	if event.Pending {
		// The money has not settled yet. The order row exists for the
		// later payment_intent event to settle against.
		s.log.Info("session completed with payment pending",
			zap.String("order_number", order.OrderNumber),
			zap.String("event_id", event.ProviderEventID),
		)
		return &order.ID, nil
	}

	updated, err := s.orders.MarkPaid(ctx, s.db, order.ID, event.ProviderPaymentID, event.OccurredAt)
	if err != nil {
		return nil, err
	}
	if updated {
		s.afterPaid(ctx, order, event)
	} else {
		s.log.Debug("order already settled",
			zap.String("order_number", order.OrderNumber),
			zap.String("event_id", event.ProviderEventID),
		)
	}

	return &order.ID, nil
}

// findForIntent resolves the order a payment_intent event belongs to.
// The payment id only lands on the order once a paid session event
// applied, so orders from delayed payment methods are found through
// the order_number checkout stamps into the intent metadata.
func (s *Service) findForIntent(ctx context.Context, event *paymentdomain.PaymentEvent) (*orderdomain.Order, error) {
	order, err := s.orders.FindByPaymentID(ctx, s.db, event.Provider, event.ProviderPaymentID)
	if err != nil || order != nil {
		return order, err
	}
	if num := strings.TrimSpace(event.Metadata["order_number"]); num != "" {
		return s.orders.FindByOrderNumber(ctx, s.db, num)
	}
	return nil, nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *paymentdomain.PaymentEvent) (*snowflake.ID, error) {
	order, err := s.findForIntent(ctx, event)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if strings.TrimSpace(event.Metadata["order_number"]) != "" {
			// The event names an order this system has no row for.
			// Not acknowledging lets the provider redeliver after the
			// session event has materialized it.
			return nil, paymentdomain.ErrOrderNotFound
		}
		// No order reference at all. The session completion that
		// materializes the order may still be in flight; it converges
		// the order to paid when it lands.
		s.log.Info("payment succeeded before order materialized",
			zap.String("provider_payment_id", event.ProviderPaymentID),
			zap.String("event_id", event.ProviderEventID),
		)
		return nil, nil
	}

	updated, err := s.orders.MarkPaid(ctx, s.db, order.ID, event.ProviderPaymentID, event.OccurredAt)
	if err != nil {
		return nil, err
	}
	if updated {
		s.afterPaid(ctx, order, event)
	}
	return &order.ID, nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *paymentdomain.PaymentEvent) (*snowflake.ID, error) {
	order, err := s.findForIntent(ctx, event)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if strings.TrimSpace(event.Metadata["order_number"]) != "" {
			return nil, paymentdomain.ErrOrderNotFound
		}
		s.log.Info("payment failed for unmaterialized order",
			zap.String("provider_payment_id", event.ProviderPaymentID),
			zap.String("event_id", event.ProviderEventID),
		)
		return nil, nil
	}

	updated, err := s.orders.MarkPaymentFailed(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if updated {
		s.recordPaymentTransition(ctx, string(orderdomain.PaymentFailed))
		s.notify(ctx, "payment_failed", func() error {
			return s.notifier.SendPaymentFailedAlert(ctx, orderNotification(order))
		})
		s.publish(ctx, "order.payment_failed", order, orderdomain.PaymentFailed)
	}
	return &order.ID, nil
}

func (s *Service) handleRefunded(ctx context.Context, event *paymentdomain.PaymentEvent) (*snowflake.ID, error) {
	order, err := s.orders.FindByPaymentID(ctx, s.db, event.Provider, event.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		s.log.Warn("refund event for unknown order",
			zap.String("provider_payment_id", event.ProviderPaymentID),
			zap.String("event_id", event.ProviderEventID),
		)
		return nil, nil
	}

	updated, err := s.orders.MarkRefunded(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if updated {
		s.recordPaymentTransition(ctx, string(orderdomain.PaymentRefunded))
		s.publish(ctx, "order.refunded", order, orderdomain.PaymentRefunded)
	}
	return &order.ID, nil
}

// materializeOrder rebuilds the order row from the session metadata
// snapshot. Checkout does not write orders; the first provider event
// for the session does.
func (s *Service) materializeOrder(ctx context.Context, event *paymentdomain.PaymentEvent) (*orderdomain.Order, error) {
	meta := event.Metadata

	orderNumber := strings.TrimSpace(meta["order_number"])
	customerID, idErr := snowflake.ParseString(strings.TrimSpace(meta["customer_id"]))
	var lines []metadataCartLine
	cartErr := json.Unmarshal([]byte(meta["cart"]), &lines)
	if orderNumber == "" || idErr != nil || customerID == 0 || cartErr != nil || len(lines) == 0 {
		// Metadata did not survive the round trip through the provider.
		// Surface it loudly; the order cannot be reconstructed.
		s.log.Error("checkout session metadata unusable",
			zap.String("session_id", event.ProviderSessionID),
			zap.String("event_id", event.ProviderEventID),
		)
		return nil, paymentdomain.ErrOrderNotFound
	}

	var address datatypes.JSONMap
	if raw := meta["shipping_address"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &address)
	}

	subtotal := parseAmount(meta["subtotal"])
	shippingFee := parseAmount(meta["shipping_fee"])
	taxAmount := parseAmount(meta["tax_amount"])
	totalAmount := parseAmount(meta["total_amount"])
	if totalAmount == 0 {
		totalAmount = event.Amount
	}

	var customerEmail, customerName string
	if cust, err := s.findCustomer(ctx, customerID); err == nil && cust != nil {
		customerEmail = cust.Email
		customerName = cust.Name
	}
	if customerName == "" {
		customerName = strings.TrimSpace(meta["customer_name"])
	}

	now := time.Now().UTC()
	order := &orderdomain.Order{
		ID:                s.genID.Generate(),
		OrderNumber:       orderNumber,
		CustomerID:        customerID,
		CustomerEmail:     customerEmail,
		CustomerName:      customerName,
		PaymentStatus:     orderdomain.PaymentPending,
		Status:            orderdomain.StatusPending,
		Currency:          strings.ToLower(meta["currency"]),
		Subtotal:          subtotal,
		ShippingFee:       shippingFee,
		TaxAmount:         taxAmount,
		TotalAmount:       totalAmount,
		Provider:          event.Provider,
		ProviderSessionID: event.ProviderSessionID,
		ProviderPaymentID: event.ProviderPaymentID,
		ShippingAddress:   address,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	items := make([]orderdomain.OrderItem, 0, len(lines))
	for _, line := range lines {
		productID, _ := snowflake.ParseString(line.ProductID)
		items = append(items, orderdomain.OrderItem{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			ProductID: productID,
			SKU:       line.SKU,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.UnitPrice * int64(line.Quantity),
			CreatedAt: now,
		})
	}

	if err := s.orders.Insert(ctx, s.db, order, items); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent delivery won the insert. Use its row.
			existing, ferr := s.orders.FindBySession(ctx, s.db, event.Provider, event.ProviderSessionID)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.log.Info("order materialized from checkout session",
		zap.String("order_number", order.OrderNumber),
		zap.String("session_id", event.ProviderSessionID),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return order, nil
}

type metadataCartLine struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type customerRow struct {
	ID    snowflake.ID
	Email string
	Name  string
}

func (s *Service) findCustomer(ctx context.Context, id snowflake.ID) (*customerRow, error) {
	var row customerRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, email, name FROM customers WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) afterPaid(ctx context.Context, order *orderdomain.Order, event *paymentdomain.PaymentEvent) {
	s.recordPaymentTransition(ctx, string(orderdomain.PaymentPaid))

	n := orderNotification(order)
	s.notify(ctx, "order_confirmation", func() error {
		return s.notifier.SendOrderConfirmation(ctx, n)
	})
	s.notify(ctx, "admin_order_alert", func() error {
		return s.notifier.SendAdminOrderAlert(ctx, n)
	})

	s.publish(ctx, "order.paid", order, orderdomain.PaymentPaid)
}

// notify runs a best-effort delivery. Failures are logged and counted,
// never returned: the payment state change already happened.
func (s *Service) notify(ctx context.Context, kind string, send func() error) {
	if err := send(); err != nil {
		s.log.Warn("notification delivery failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordNotification(ctx, kind, "error")
		}
		return
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordNotification(ctx, kind, "sent")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, order *orderdomain.Order, paymentStatus orderdomain.PaymentStatus) {
	err := s.publisher.PublishOrderEvent(ctx, events.OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		PaymentStatus: string(paymentStatus),
		Status:        string(order.Status),
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("order event publish failed",
			zap.String("event_type", eventType),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
}

func (s *Service) recordPaymentTransition(ctx context.Context, target string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrderTransition(ctx, "payment", target)
	}
}

func orderNotification(order *orderdomain.Order) notification.OrderNotification {
	return notification.OrderNotification{
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
	}
}

func parseAmount(value string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
