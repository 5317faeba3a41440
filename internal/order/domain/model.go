// Package domain contains core types for order lifecycle management.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Order tracks a purchase across two independent axes: how the money
// moved (PaymentStatus) and where the goods are (Status).
type Order struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderNumber       string            `gorm:"column:order_number;type:text;not null;uniqueIndex" json:"order_number"`
	CustomerID        snowflake.ID      `gorm:"column:customer_id;not null;index" json:"customer_id"`
	CustomerEmail     string            `gorm:"column:customer_email;type:text;not null" json:"customer_email"`
	CustomerName      string            `gorm:"column:customer_name;type:text" json:"customer_name"`
	PaymentStatus     PaymentStatus     `gorm:"column:payment_status;type:text;not null" json:"payment_status"`
	Status            Status            `gorm:"column:status;type:text;not null" json:"status"`
	Currency          string            `gorm:"type:text;not null" json:"currency"`
	Subtotal          int64             `gorm:"not null" json:"subtotal"`
	ShippingFee       int64             `gorm:"column:shipping_fee;not null" json:"shipping_fee"`
	TaxAmount         int64             `gorm:"column:tax_amount;not null" json:"tax_amount"`
	TotalAmount       int64             `gorm:"column:total_amount;not null" json:"total_amount"`
	Provider          string            `gorm:"type:text" json:"provider"`
	ProviderSessionID string            `gorm:"column:provider_session_id;type:text" json:"provider_session_id,omitempty"`
	ProviderPaymentID string            `gorm:"column:provider_payment_id;type:text" json:"provider_payment_id,omitempty"`
	ShippingAddress   datatypes.JSONMap `gorm:"column:shipping_address;type:jsonb" json:"shipping_address,omitempty"`
	AdminNotes        string            `gorm:"column:admin_notes;type:text" json:"admin_notes,omitempty"`
	PaidAt            *time.Time        `gorm:"column:paid_at" json:"paid_at,omitempty"`
	ShippedAt         *time.Time        `gorm:"column:shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is a priced line frozen at checkout time. Catalog edits
// after checkout never change it.
type OrderItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID   snowflake.ID `gorm:"column:order_id;not null;index" json:"order_id"`
	ProductID snowflake.ID `gorm:"column:product_id;not null" json:"product_id"`
	SKU       string       `gorm:"column:sku;type:text" json:"sku"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	UnitPrice int64        `gorm:"column:unit_price;not null" json:"unit_price"`
	Quantity  int          `gorm:"not null" json:"quantity"`
	LineTotal int64        `gorm:"column:line_total;not null" json:"line_total"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }
