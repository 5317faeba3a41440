package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogrepo "github.com/shopdome/commerce/internal/catalog/repository"
	checkoutdomain "github.com/shopdome/commerce/internal/checkout/domain"
	checkoutservice "github.com/shopdome/commerce/internal/checkout/service"
	"github.com/shopdome/commerce/internal/config"
	customerrepo "github.com/shopdome/commerce/internal/customer/repository"
	customerservice "github.com/shopdome/commerce/internal/customer/service"
	"github.com/shopdome/commerce/internal/events"
	"github.com/shopdome/commerce/internal/notification"
	orderdomain "github.com/shopdome/commerce/internal/order/domain"
	orderrepo "github.com/shopdome/commerce/internal/order/repository"
	orderservice "github.com/shopdome/commerce/internal/order/service"
	"github.com/shopdome/commerce/internal/payment/adapters"
	"github.com/shopdome/commerce/internal/payment/adapters/stripe"
	paymentdomain "github.com/shopdome/commerce/internal/payment/domain"
	paymentrepo "github.com/shopdome/commerce/internal/payment/repository"
	paymentservice "github.com/shopdome/commerce/internal/payment/service"
	paymentwebhook "github.com/shopdome/commerce/internal/payment/webhook"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			unit_price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_products_sku ON products(sku)`,
		`CREATE TABLE customers (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_customers_email ON customers(email)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			order_number TEXT NOT NULL,
			customer_id BIGINT NOT NULL,
			customer_email TEXT NOT NULL,
			customer_name TEXT,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			status TEXT NOT NULL DEFAULT 'pending',
			currency TEXT NOT NULL,
			subtotal BIGINT NOT NULL,
			shipping_fee BIGINT NOT NULL,
			tax_amount BIGINT NOT NULL,
			total_amount BIGINT NOT NULL,
			provider TEXT,
			provider_session_id TEXT,
			provider_payment_id TEXT,
			shipping_address TEXT,
			admin_notes TEXT NOT NULL DEFAULT '',
			paid_at DATETIME,
			shipped_at DATETIME,
			delivered_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_orders_order_number ON orders(order_number)`,
		`CREATE UNIQUE INDEX ux_orders_provider_session ON orders(provider, provider_session_id)`,
		`CREATE TABLE order_items (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			sku TEXT,
			name TEXT NOT NULL,
			unit_price BIGINT NOT NULL,
			quantity INTEGER NOT NULL,
			line_total BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			order_id BIGINT,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type recordingNotifier struct {
	confirmations int
	failedAlerts  int
	adminAlerts   int
	err           error
}

func (n *recordingNotifier) SendOrderConfirmation(context.Context, notification.OrderNotification) error {
	n.confirmations++
	return n.err
}

func (n *recordingNotifier) SendPaymentFailedAlert(context.Context, notification.OrderNotification) error {
	n.failedAlerts++
	return n.err
}

func (n *recordingNotifier) SendAdminOrderAlert(context.Context, notification.OrderNotification) error {
	n.adminAlerts++
	return n.err
}

type recordingPublisher struct {
	events []events.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event events.OrderEvent) error {
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	svc       *paymentservice.Service
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	svc := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      paymentrepo.Provide(),
		Orders:    orderrepo.Provide(),
		Notifier:  notifier,
		Publisher: publisher,
	})

	return &fixture{
		db:        db,
		node:      node,
		svc:       svc,
		notifier:  notifier,
		publisher: publisher,
	}
}

func seedCustomer(t *testing.T, db *gorm.DB, id snowflake.ID) {
	t.Helper()

	now := time.Now().UTC()
	err := db.Exec(
		"INSERT INTO customers (id, email, name, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, "jane@example.com", "Jane Doe", "", now, now,
	).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func checkoutCompletedEvent(t *testing.T, customerID snowflake.ID, eventID, sessionID string) *paymentdomain.PaymentEvent {
	t.Helper()

	cart, err := json.Marshal([]map[string]any{{
		"product_id": "98765",
		"sku":        "MUG-01",
		"name":       "Coffee Mug",
		"unit_price": 1500,
		"quantity":   2,
	}})
	if err != nil {
		t.Fatalf("marshal cart: %v", err)
	}

	return &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   eventID,
		ProviderSessionID: sessionID,
		ProviderPaymentID: "pi_100",
		Type:              paymentdomain.EventTypeCheckoutCompleted,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
		Metadata: map[string]string{
			"order_number": "SDM-20260901-TEST",
			"customer_id":  customerID.String(),
			"cart":         string(cart),
			"subtotal":     "3000",
			"shipping_fee": "500",
			"tax_amount":   "600",
			"total_amount": "4100",
			"currency":     "usd",
		},
	}
}

func loadOrder(t *testing.T, db *gorm.DB, orderNumber string) *orderdomain.Order {
	t.Helper()

	order, err := orderrepo.Provide().FindByOrderNumber(context.Background(), db, orderNumber)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order == nil {
		t.Fatalf("order %s not found", orderNumber)
	}
	return order
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}

func TestCheckoutCompletedMaterializesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	event := checkoutCompletedEvent(t, customerID, "evt_1", "cs_1")
	if err := f.svc.ProcessEvent(ctx, event, []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("process event: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-TEST")
	if order.PaymentStatus != orderdomain.PaymentPaid {
		t.Fatalf("expected payment status paid, got %s", order.PaymentStatus)
	}
	if order.Status != orderdomain.StatusConfirmed {
		t.Fatalf("expected status confirmed, got %s", order.Status)
	}
	if order.ProviderPaymentID != "pi_100" {
		t.Fatalf("expected provider payment id pi_100, got %s", order.ProviderPaymentID)
	}
	if order.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
	if order.CustomerEmail != "jane@example.com" {
		t.Fatalf("expected customer email, got %s", order.CustomerEmail)
	}
	if order.TotalAmount != 4100 || order.Subtotal != 3000 {
		t.Fatalf("unexpected amounts: total %d subtotal %d", order.TotalAmount, order.Subtotal)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM order_items", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL AND order_id IS NOT NULL", 1)

	if f.notifier.confirmations != 1 || f.notifier.adminAlerts != 1 {
		t.Fatalf("expected confirmation and admin alert, got %d/%d", f.notifier.confirmations, f.notifier.adminAlerts)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].EventType != "order.paid" {
		t.Fatalf("expected order.paid event, got %v", f.publisher.events)
	}
}

func TestRedeliveredEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 21)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	if err := f.svc.ProcessEvent(ctx, checkoutCompletedEvent(t, customerID, "evt_1", "cs_1"), []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	err := f.svc.ProcessEvent(ctx, checkoutCompletedEvent(t, customerID, "evt_1", "cs_1"), []byte(`{"id":"evt_1"}`))
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM orders", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM payment_events", 1)
	if f.notifier.confirmations != 1 {
		t.Fatalf("expected a single confirmation, got %d", f.notifier.confirmations)
	}
}

func TestDistinctEventForSettledOrderDoesNotDoubleApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 22)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	if err := f.svc.ProcessEvent(ctx, checkoutCompletedEvent(t, customerID, "evt_1", "cs_1"), []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("session completed: %v", err)
	}

	// A later payment_intent.succeeded for the same payment must not
	// re-fire notifications or events.
	succeeded := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_2",
		ProviderPaymentID: "pi_100",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, succeeded, []byte(`{"id":"evt_2"}`)); err != nil {
		t.Fatalf("payment succeeded: %v", err)
	}

	if f.notifier.confirmations != 1 {
		t.Fatalf("expected one confirmation, got %d", f.notifier.confirmations)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(f.publisher.events))
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 2)
}

func TestPaymentSucceededBeforeSessionAcks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 23)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	succeeded := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_early",
		ProviderPaymentID: "pi_100",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, succeeded, []byte(`{"id":"evt_early"}`)); err != nil {
		t.Fatalf("expected out-of-order event to ack, got %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM orders", 0)

	// The session completion lands later and the order converges to paid.
	if err := f.svc.ProcessEvent(ctx, checkoutCompletedEvent(t, customerID, "evt_late", "cs_1"), []byte(`{"id":"evt_late"}`)); err != nil {
		t.Fatalf("session completed: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-TEST")
	if order.PaymentStatus != orderdomain.PaymentPaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}
}

func TestPaymentFailedMarksOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 24)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)
	seedPendingOrder(t, f, customerID, "pi_200")

	failed := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_failed",
		ProviderPaymentID: "pi_200",
		Type:              paymentdomain.EventTypePaymentFailed,
		OccurredAt:        time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, failed, []byte(`{"id":"evt_failed"}`)); err != nil {
		t.Fatalf("process event: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-SEED")
	if order.PaymentStatus != orderdomain.PaymentFailed {
		t.Fatalf("expected failed, got %s", order.PaymentStatus)
	}
	if order.Status != orderdomain.StatusPending {
		t.Fatalf("fulfillment must stay pending, got %s", order.Status)
	}
	if f.notifier.failedAlerts != 1 {
		t.Fatalf("expected failed alert, got %d", f.notifier.failedAlerts)
	}
}

func TestRefundMarksPaidOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)
	seedPendingOrder(t, f, customerID, "pi_300")
	if err := f.db.Exec("UPDATE orders SET payment_status = 'paid'").Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	refunded := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_refund",
		ProviderPaymentID: "pi_300",
		Type:              paymentdomain.EventTypeRefunded,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
	}
	if err := f.svc.ProcessEvent(ctx, refunded, []byte(`{"id":"evt_refund"}`)); err != nil {
		t.Fatalf("process event: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-SEED")
	if order.PaymentStatus != orderdomain.PaymentRefunded {
		t.Fatalf("expected refunded, got %s", order.PaymentStatus)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].EventType != "order.refunded" {
		t.Fatalf("expected order.refunded event, got %v", f.publisher.events)
	}
}

func TestNotifierFailureDoesNotFailProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 26)
	f.notifier.err = errors.New("smtp down")

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	if err := f.svc.ProcessEvent(ctx, checkoutCompletedEvent(t, customerID, "evt_1", "cs_1"), []byte(`{"id":"evt_1"}`)); err != nil {
		t.Fatalf("notification failure must not fail processing: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-TEST")
	if order.PaymentStatus != orderdomain.PaymentPaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}
}

func TestUnusableMetadataRejectsEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 27)

	event := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_broken",
		ProviderSessionID: "cs_broken",
		ProviderPaymentID: "pi_broken",
		Type:              paymentdomain.EventTypeCheckoutCompleted,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
		Metadata:          map[string]string{"order_number": ""},
	}

	err := f.svc.ProcessEvent(ctx, event, []byte(`{"id":"evt_broken"}`))
	if !errors.Is(err, paymentdomain.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM orders", 0)
}

func TestIngestWebhookEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 28)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	secret := "whsec_test"
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		PaymentSvc: f.svc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory()),
		Cfg: config.Config{
			Checkout: config.CheckoutConfig{StripeWebhookSecret: secret},
		},
	})

	cart, err := json.Marshal([]map[string]any{{
		"product_id": "98765",
		"sku":        "MUG-01",
		"name":       "Coffee Mug",
		"unit_price": 1500,
		"quantity":   2,
	}})
	if err != nil {
		t.Fatalf("marshal cart: %v", err)
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_hook",
		"type":    "checkout.session.completed",
		"created": now.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_hook",
				"payment_intent": "pi_hook",
				"amount_total":   4100,
				"currency":       "usd",
				"payment_status": "paid",
				"created":        now.Unix(),
				"metadata": map[string]any{
					"order_number": "SDM-20260901-HOOK",
					"customer_id":  customerID.String(),
					"cart":         string(cart),
					"subtotal":     "3000",
					"shipping_fee": "500",
					"tax_amount":   "600",
					"total_amount": "4100",
					"currency":     "usd",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now.Unix()))

	eventType, err := webhookSvc.IngestWebhook(ctx, "stripe", payload, header)
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if eventType != "checkout.session.completed" {
		t.Fatalf("expected provider event type echoed, got %q", eventType)
	}

	order := loadOrder(t, f.db, "SDM-20260901-HOOK")
	if order.PaymentStatus != orderdomain.PaymentPaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}

	// Redelivery acks without error.
	if eventType, err := webhookSvc.IngestWebhook(ctx, "stripe", payload, header); err != nil || eventType != "checkout.session.completed" {
		t.Fatalf("redelivery must ack with event type, got %q, %v", eventType, err)
	}

	// Bad signature is rejected.
	header.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, now.Unix()))
	if _, err := webhookSvc.IngestWebhook(ctx, "stripe", payload, header); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func seedPendingOrder(t *testing.T, f *fixture, customerID snowflake.ID, paymentID string) {
	t.Helper()

	now := time.Now().UTC()
	err := f.db.Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, customer_email, customer_name,
			payment_status, status, currency, subtotal, shipping_fee,
			tax_amount, total_amount, provider, provider_session_id,
			provider_payment_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 'pending', 'pending', 'usd', 3000, 500, 600, 4100, 'stripe', ?, ?, ?, ?)`,
		f.node.Generate(),
		"SDM-20260901-SEED",
		customerID,
		"jane@example.com",
		"Jane Doe",
		"cs_seed",
		paymentID,
		now,
		now,
	).Error
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

func TestPendingSessionMaterializesUnpaidOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	event := checkoutCompletedEvent(t, customerID, "evt_async_1", "cs_async")
	event.Pending = true
	event.ProviderPaymentID = ""
	if err := f.svc.ProcessEvent(ctx, event, []byte(`{"id":"evt_async_1"}`)); err != nil {
		t.Fatalf("process pending session: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-TEST")
	if order.PaymentStatus != orderdomain.PaymentPending {
		t.Fatalf("expected payment pending, got %s", order.PaymentStatus)
	}
	if order.Status != orderdomain.StatusPending {
		t.Fatalf("expected fulfillment pending, got %s", order.Status)
	}
	if f.notifier.confirmations != 0 {
		t.Fatalf("no confirmation before the money settles, got %d", f.notifier.confirmations)
	}
}

func TestAsyncPaymentSettlesThroughOrderNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 51)

	customerID := f.node.Generate()
	seedCustomer(t, f.db, customerID)

	session := checkoutCompletedEvent(t, customerID, "evt_async_1", "cs_async")
	session.Pending = true
	session.ProviderPaymentID = ""
	if err := f.svc.ProcessEvent(ctx, session, []byte(`{"id":"evt_async_1"}`)); err != nil {
		t.Fatalf("process pending session: %v", err)
	}

	// The settlement arrives as a payment_intent event carrying only
	// the order number the checkout flow stamped into its metadata.
	succeeded := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_async_2",
		ProviderPaymentID: "pi_async",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
		Metadata:          map[string]string{"order_number": "SDM-20260901-TEST"},
	}
	if err := f.svc.ProcessEvent(ctx, succeeded, []byte(`{"id":"evt_async_2"}`)); err != nil {
		t.Fatalf("process settlement: %v", err)
	}

	order := loadOrder(t, f.db, "SDM-20260901-TEST")
	if order.PaymentStatus != orderdomain.PaymentPaid {
		t.Fatalf("expected paid, got %s", order.PaymentStatus)
	}
	if order.Status != orderdomain.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", order.Status)
	}
	if order.ProviderPaymentID != "pi_async" {
		t.Fatalf("expected payment id recorded, got %s", order.ProviderPaymentID)
	}
	if f.notifier.confirmations != 1 {
		t.Fatalf("expected one confirmation, got %d", f.notifier.confirmations)
	}
}

func TestIntentNamingUnknownOrderIsNotAcked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 52)

	succeeded := &paymentdomain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_orphan",
		ProviderPaymentID: "pi_orphan",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		Amount:            4100,
		Currency:          "USD",
		OccurredAt:        time.Now().UTC(),
		Metadata:          map[string]string{"order_number": "SDM-20260901-GONE"},
	}

	err := f.svc.ProcessEvent(ctx, succeeded, []byte(`{"id":"evt_orphan"}`))
	if !errors.Is(err, paymentdomain.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM orders", 0)
	// The event stays unprocessed so a redelivery can settle it once
	// the session event has landed.
	assertCount(t, f.db, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 0)
}

type capturingProvider struct {
	lastReq checkoutdomain.ProviderSessionRequest
}

func (p *capturingProvider) CreateSession(_ context.Context, req checkoutdomain.ProviderSessionRequest) (checkoutdomain.ProviderSession, error) {
	p.lastReq = req
	return checkoutdomain.ProviderSession{ID: "cs_flow", URL: "https://checkout.example.com/cs_flow"}, nil
}

func TestCheckoutToShippedFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 53)

	now := time.Now().UTC()
	productID := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO products (id, sku, name, description, unit_price, currency, active, metadata, created_at, updated_at)
		 VALUES (?, 'MUG-01', 'Coffee Mug', NULL, 100, 'usd', TRUE, NULL, ?, ?)`,
		productID, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	customers := customerservice.New(customerservice.Params{
		DB:    f.db,
		Log:   zap.NewNop(),
		GenID: f.node,
		Repo:  customerrepo.Provide(),
	})
	provider := &capturingProvider{}
	checkoutSvc := checkoutservice.New(checkoutservice.Params{
		DB:  f.db,
		Log: zap.NewNop(),
		Config: config.Config{
			Checkout: config.CheckoutConfig{
				Currency:          "usd",
				ShippingCountries: []string{"US"},
			},
		},
		Catalog:   catalogrepo.Provide(),
		Customers: customers,
		Provider:  provider,
	})

	resp, err := checkoutSvc.CreateSession(ctx, checkoutdomain.CreateSessionRequest{
		Items:    []checkoutdomain.CartItem{{ProductID: productID.String(), Quantity: 2}},
		Customer: checkoutdomain.CustomerInfo{Email: "a@b.com", Name: "Ada B"},
		ShippingAddress: checkoutdomain.ShippingAddress{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !regexp.MustCompile(`^SDM-\d{8}-[A-Z0-9]{4}$`).MatchString(resp.OrderNumber) {
		t.Fatalf("unexpected order number %q", resp.OrderNumber)
	}
	if resp.TotalAmount != 200 {
		t.Fatalf("expected total 200, got %d", resp.TotalAmount)
	}

	// The provider echoes the session metadata back on completion.
	meta := map[string]any{}
	for k, v := range provider.lastReq.Metadata {
		meta[k] = v
	}
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_flow",
		"type":    "checkout.session.completed",
		"created": now.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_flow",
				"payment_intent": "pi_flow",
				"amount_total":   resp.TotalAmount,
				"currency":       "usd",
				"payment_status": "paid",
				"created":        now.Unix(),
				"metadata":       meta,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	secret := "whsec_flow"
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		PaymentSvc: f.svc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory()),
		Cfg: config.Config{
			Checkout: config.CheckoutConfig{StripeWebhookSecret: secret},
		},
	})
	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, now.Unix()))
	if _, err := webhookSvc.IngestWebhook(ctx, "stripe", payload, header); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	order := loadOrder(t, f.db, resp.OrderNumber)
	if order.PaymentStatus != orderdomain.PaymentPaid || order.Status != orderdomain.StatusConfirmed {
		t.Fatalf("expected paid/confirmed, got %s/%s", order.PaymentStatus, order.Status)
	}

	orderSvc := orderservice.New(orderservice.Params{
		DB:   f.db,
		Log:  zap.NewNop(),
		Repo: orderrepo.Provide(),
	})
	shipped, err := orderSvc.UpdateStatus(ctx, orderdomain.UpdateStatusRequest{
		ID:     order.ID.String(),
		Status: string(orderdomain.StatusShipped),
	})
	if err != nil {
		t.Fatalf("ship order: %v", err)
	}
	if shipped.Status != orderdomain.StatusShipped {
		t.Fatalf("expected shipped, got %s", shipped.Status)
	}
	if shipped.ShippedAt == nil {
		t.Fatalf("expected shipped_at to be set")
	}
	if shipped.DeliveredAt != nil {
		t.Fatalf("delivered_at must stay unset")
	}
}
