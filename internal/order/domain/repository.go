package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListOrderFilter struct {
	PaymentStatus PaymentStatus
	Status        Status
	CustomerEmail string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// Repository persists orders. Status changes are single conditional
// UPDATE statements so concurrent writers cannot interleave a
// read-then-write.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order, items []OrderItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByOrderNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*Order, error)
	FindBySession(ctx context.Context, db *gorm.DB, provider, sessionID string) (*Order, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, provider, paymentID string) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, page pagination.Pagination) ([]*Order, error)

	// MarkPaid moves payment to paid from pending or failed, records the
	// provider payment id and paid_at, and confirms fulfillment when it
	// is still pending. Returns false when no row qualified.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, paidAt time.Time) (bool, error)

	// MarkPaymentFailed moves payment from pending to failed. A paid
	// order never regresses. Returns false when no row qualified.
	MarkPaymentFailed(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// MarkRefunded moves payment from paid to refunded. Returns false
	// when no row qualified.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// UpdateFulfillment moves fulfillment from one exact status to
	// another. shipped_at and delivered_at are stamped once and kept on
	// later transitions. requirePaid adds a paid guard to the same
	// statement. A non-empty notes value replaces admin_notes; empty
	// leaves it untouched. Returns false when no row qualified.
	UpdateFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, requirePaid bool, notes string, now time.Time) (bool, error)
}
