package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/internal/order/domain"
	orderrepo "github.com/shopdome/commerce/internal/order/repository"
	orderservice "github.com/shopdome/commerce/internal/order/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_order_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
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
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc := orderservice.New(orderservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: orderrepo.Provide(),
	})

	return &fixture{db: db, node: node, svc: svc}
}

func (f *fixture) seedOrder(t *testing.T, paymentStatus domain.PaymentStatus, status domain.Status) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := time.Now().UTC()
	err := f.db.Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, customer_email, customer_name,
			payment_status, status, currency, subtotal, shipping_fee,
			tax_amount, total_amount, provider, created_at, updated_at
		) VALUES (?, ?, ?, 'jane@example.com', 'Jane Doe', ?, ?, 'usd', 3000, 500, 600, 4100, 'stripe', ?, ?)`,
		id,
		fmt.Sprintf("SDM-20260901-%s", id.String()),
		f.node.Generate(),
		paymentStatus,
		status,
		now,
		now,
	).Error
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return id
}

func TestUpdateStatusAdvancesOneStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusConfirmed)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusProcessing),
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if order.Status != domain.StatusProcessing {
		t.Fatalf("expected processing, got %s", order.Status)
	}
}

func TestUpdateStatusShipsConfirmedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 31)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusConfirmed)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusShipped),
	})
	if err != nil {
		t.Fatalf("ship confirmed order: %v", err)
	}
	if order.Status != domain.StatusShipped {
		t.Fatalf("expected shipped, got %s", order.Status)
	}
	if order.ShippedAt == nil {
		t.Fatalf("expected shipped_at to be set")
	}
	if order.DeliveredAt != nil {
		t.Fatalf("delivered_at must stay unset")
	}
}

func TestUpdateStatusRejectsBackwardsMove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 39)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusShipped)

	_, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusProcessing),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUpdateStatusRequiresPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 32)
	id := f.seedOrder(t, domain.PaymentPending, domain.StatusPending)

	_, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusConfirmed),
	})
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("expected payment required, got %v", err)
	}
}

func TestUpdateStatusCancelsUnpaidOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 33)
	id := f.seedOrder(t, domain.PaymentPending, domain.StatusPending)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusCancelled),
	})
	if err != nil {
		t.Fatalf("cancel unpaid order: %v", err)
	}
	if order.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
}

func TestUpdateStatusCancelsShippedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 34)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusShipped)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusCancelled),
	})
	if err != nil {
		t.Fatalf("cancel shipped order: %v", err)
	}
	if order.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}
}

func TestUpdateStatusRejectsCancelAfterDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusDelivered)

	_, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusCancelled),
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUpdateStatusAppendsAdminNotes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 41)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusConfirmed)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:         id.String(),
		Status:     string(domain.StatusProcessing),
		AdminNotes: "picked by warehouse A",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if order.AdminNotes != "picked by warehouse A" {
		t.Fatalf("expected note, got %q", order.AdminNotes)
	}

	order, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:         id.String(),
		Status:     string(domain.StatusShipped),
		AdminNotes: "handed to carrier",
	})
	if err != nil {
		t.Fatalf("ship order: %v", err)
	}
	if order.AdminNotes != "picked by warehouse A\nhanded to carrier" {
		t.Fatalf("notes must append, got %q", order.AdminNotes)
	}

	// A transition without a note keeps the trail untouched.
	order, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusDelivered),
	})
	if err != nil {
		t.Fatalf("deliver order: %v", err)
	}
	if order.AdminNotes != "picked by warehouse A\nhanded to carrier" {
		t.Fatalf("empty note must not clear trail, got %q", order.AdminNotes)
	}
}

func TestUpdateStatusStampsShippedAtOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 35)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusProcessing)

	order, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusShipped),
	})
	if err != nil {
		t.Fatalf("ship order: %v", err)
	}
	if order.ShippedAt == nil {
		t.Fatalf("expected shipped_at to be set")
	}
	firstShipped := *order.ShippedAt

	order, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: string(domain.StatusDelivered),
	})
	if err != nil {
		t.Fatalf("deliver order: %v", err)
	}
	if order.DeliveredAt == nil {
		t.Fatalf("expected delivered_at to be set")
	}
	if order.ShippedAt == nil || !order.ShippedAt.Equal(firstShipped) {
		t.Fatalf("shipped_at must not change after shipping")
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 36)
	id := f.seedOrder(t, domain.PaymentPaid, domain.StatusConfirmed)

	_, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     id.String(),
		Status: "archived",
	})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 37)

	_, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{
		ID:     f.node.Generate().String(),
		Status: string(domain.StatusConfirmed),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 38)
	f.seedOrder(t, domain.PaymentPaid, domain.StatusConfirmed)
	f.seedOrder(t, domain.PaymentPending, domain.StatusPending)

	resp, err := f.svc.List(ctx, domain.ListOrderRequest{PaymentStatus: "paid"})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 paid order, got %d", len(resp.Orders))
	}

	if _, err := f.svc.List(ctx, domain.ListOrderRequest{Status: "bogus"}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}
