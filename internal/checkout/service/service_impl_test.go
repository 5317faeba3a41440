package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogrepo "github.com/shopdome/commerce/internal/catalog/repository"
	"github.com/shopdome/commerce/internal/checkout/domain"
	checkoutservice "github.com/shopdome/commerce/internal/checkout/service"
	"github.com/shopdome/commerce/internal/config"
	customerrepo "github.com/shopdome/commerce/internal/customer/repository"
	customerservice "github.com/shopdome/commerce/internal/customer/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_checkout_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type fakeProvider struct {
	lastReq domain.ProviderSessionRequest
	err     error
}

func (p *fakeProvider) CreateSession(_ context.Context, req domain.ProviderSessionRequest) (domain.ProviderSession, error) {
	p.lastReq = req
	if p.err != nil {
		return domain.ProviderSession{}, p.err
	}
	return domain.ProviderSession{ID: "cs_test", URL: "https://checkout.example.com/cs_test"}, nil
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	provider *fakeProvider
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	customers := customerservice.New(customerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  customerrepo.Provide(),
	})

	provider := &fakeProvider{}
	svc := checkoutservice.New(checkoutservice.Params{
		DB:  db,
		Log: zap.NewNop(),
		Config: config.Config{
			Checkout: config.CheckoutConfig{
				Currency:          "usd",
				ShippingFee:       500,
				TaxRateBps:        200,
				ShippingCountries: []string{"US", "CA"},
			},
		},
		Catalog:   catalogrepo.Provide(),
		Customers: customers,
		Provider:  provider,
	})

	return &fixture{db: db, node: node, svc: svc, provider: provider}
}

func (f *fixture) seedProduct(t *testing.T, sku string, unitPrice int64, active bool) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := time.Now().UTC()
	err := f.db.Exec(
		`INSERT INTO products (id, sku, name, description, unit_price, currency, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, 'usd', ?, NULL, ?, ?)`,
		id, sku, "Product "+sku, unitPrice, active, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func validRequest(productID snowflake.ID, qty int) domain.CreateSessionRequest {
	return domain.CreateSessionRequest{
		Items: []domain.CartItem{{ProductID: productID.String(), Quantity: qty}},
		Customer: domain.CustomerInfo{
			Email: "jane@example.com",
			Name:  "Jane Doe",
		},
		ShippingAddress: domain.ShippingAddress{
			Line1:      "1 Main St",
			City:       "Portland",
			PostalCode: "97201",
			Country:    "US",
		},
	}
}

func TestCreateSessionComputesTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 40)
	productID := f.seedProduct(t, "MUG-01", 1500, true)

	resp, err := f.svc.CreateSession(ctx, validRequest(productID, 2))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if resp.Subtotal != 3000 {
		t.Fatalf("expected subtotal 3000, got %d", resp.Subtotal)
	}
	if resp.ShippingFee != 500 {
		t.Fatalf("expected shipping fee 500, got %d", resp.ShippingFee)
	}
	// 2% of 3000
	if resp.TaxAmount != 60 {
		t.Fatalf("expected tax 60, got %d", resp.TaxAmount)
	}
	if resp.TotalAmount != 3560 {
		t.Fatalf("expected total 3560, got %d", resp.TotalAmount)
	}
	if resp.SessionID != "cs_test" || resp.CheckoutURL == "" {
		t.Fatalf("expected provider session in response, got %+v", resp)
	}

	matched, err := regexp.MatchString(`^SDM-\d{8}-[A-Z2-9]{4}$`, resp.OrderNumber)
	if err != nil || !matched {
		t.Fatalf("unexpected order number format: %s", resp.OrderNumber)
	}
}

func TestCreateSessionSnapshotsCartInMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 41)
	productID := f.seedProduct(t, "MUG-01", 1500, true)

	resp, err := f.svc.CreateSession(ctx, validRequest(productID, 2))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	meta := f.provider.lastReq.Metadata
	if meta["order_number"] != resp.OrderNumber {
		t.Fatalf("metadata order number mismatch: %s vs %s", meta["order_number"], resp.OrderNumber)
	}
	if meta["total_amount"] != "3560" || meta["subtotal"] != "3000" {
		t.Fatalf("unexpected metadata amounts: %v", meta)
	}
	if meta["customer_id"] == "" {
		t.Fatalf("expected customer id in metadata")
	}

	var cart []struct {
		ProductID string `json:"product_id"`
		SKU       string `json:"sku"`
		UnitPrice int64  `json:"unit_price"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(meta["cart"]), &cart); err != nil {
		t.Fatalf("cart metadata must be valid JSON: %v", err)
	}
	if len(cart) != 1 || cart[0].ProductID != productID.String() || cart[0].Quantity != 2 || cart[0].UnitPrice != 1500 {
		t.Fatalf("unexpected cart snapshot: %+v", cart)
	}
}

func TestCreateSessionUpsertsCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 42)
	productID := f.seedProduct(t, "MUG-01", 1500, true)

	if _, err := f.svc.CreateSession(ctx, validRequest(productID, 1)); err != nil {
		t.Fatalf("first session: %v", err)
	}

	// A second checkout with the same email must reuse the customer row.
	req := validRequest(productID, 1)
	req.Customer.Name = "Jane A. Doe"
	if _, err := f.svc.CreateSession(ctx, req); err != nil {
		t.Fatalf("second session: %v", err)
	}

	var count int64
	if err := f.db.Raw("SELECT COUNT(1) FROM customers").Scan(&count).Error; err != nil {
		t.Fatalf("count customers: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one customer row, got %d", count)
	}

	var name string
	if err := f.db.Raw("SELECT name FROM customers").Scan(&name).Error; err != nil {
		t.Fatalf("read customer: %v", err)
	}
	if name != "Jane A. Doe" {
		t.Fatalf("expected refreshed contact name, got %s", name)
	}
}

func TestCreateSessionAggregatesDuplicateItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 43)
	productID := f.seedProduct(t, "MUG-01", 1500, true)

	req := validRequest(productID, 1)
	req.Items = append(req.Items, domain.CartItem{ProductID: productID.String(), Quantity: 2})

	resp, err := f.svc.CreateSession(ctx, req)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if resp.Subtotal != 4500 {
		t.Fatalf("expected aggregated subtotal 4500, got %d", resp.Subtotal)
	}
	if len(f.provider.lastReq.Lines) != 1 {
		t.Fatalf("expected one provider line, got %d", len(f.provider.lastReq.Lines))
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 44)
	activeID := f.seedProduct(t, "MUG-01", 1500, true)
	inactiveID := f.seedProduct(t, "MUG-99", 1500, false)

	tests := []struct {
		name    string
		mutate  func(*domain.CreateSessionRequest)
		wantErr error
	}{
		{"empty cart", func(r *domain.CreateSessionRequest) { r.Items = nil }, domain.ErrEmptyCart},
		{"zero quantity", func(r *domain.CreateSessionRequest) { r.Items[0].Quantity = 0 }, domain.ErrInvalidQuantity},
		{"bad email", func(r *domain.CreateSessionRequest) { r.Customer.Email = "not-an-email" }, domain.ErrInvalidEmail},
		{"missing address line", func(r *domain.CreateSessionRequest) { r.ShippingAddress.Line1 = "" }, domain.ErrInvalidAddress},
		{"unsupported country", func(r *domain.CreateSessionRequest) { r.ShippingAddress.Country = "DE" }, domain.ErrUnsupportedCountry},
		{"unknown product", func(r *domain.CreateSessionRequest) { r.Items[0].ProductID = "12345" }, domain.ErrUnknownProduct},
		{"inactive product", func(r *domain.CreateSessionRequest) { r.Items[0].ProductID = inactiveID.String() }, domain.ErrInactiveProduct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(activeID, 1)
			tt.mutate(&req)
			if _, err := f.svc.CreateSession(ctx, req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSessionProviderFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 45)
	productID := f.seedProduct(t, "MUG-01", 1500, true)
	f.provider.err = domain.ErrProviderFailure

	if _, err := f.svc.CreateSession(ctx, validRequest(productID, 1)); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}

	// No order row should ever exist before the webhook lands.
	var count int64
	if err := f.db.Raw("SELECT COUNT(1) FROM customers").Scan(&count).Error; err != nil {
		t.Fatalf("count customers: %v", err)
	}
	if count != 1 {
		t.Fatalf("customer upsert still expected, got %d rows", count)
	}
}
