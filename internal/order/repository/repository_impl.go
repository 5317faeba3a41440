package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopdome/commerce/internal/order/domain"
	"github.com/shopdome/commerce/pkg/db/option"
	"github.com/shopdome/commerce/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.OrderItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			`INSERT INTO orders (
				id, order_number, customer_id, customer_email, customer_name,
				payment_status, status, currency, subtotal, shipping_fee,
				tax_amount, total_amount, provider, provider_session_id,
				provider_payment_id, shipping_address, admin_notes, paid_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID,
			order.OrderNumber,
			order.CustomerID,
			order.CustomerEmail,
			order.CustomerName,
			order.PaymentStatus,
			order.Status,
			order.Currency,
			order.Subtotal,
			order.ShippingFee,
			order.TaxAmount,
			order.TotalAmount,
			order.Provider,
			order.ProviderSessionID,
			order.ProviderPaymentID,
			order.ShippingAddress,
			order.AdminNotes,
			order.PaidAt,
			order.CreatedAt,
			order.UpdatedAt,
		).Error
		if err != nil {
			return err
		}

		for i := range items {
			item := &items[i]
			err := tx.Exec(
				`INSERT INTO order_items (id, order_id, product_id, sku, name, unit_price, quantity, line_total, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID,
				item.OrderID,
				item.ProductID,
				item.SKU,
				item.Name,
				item.UnitPrice,
				item.Quantity,
				item.LineTotal,
				item.CreatedAt,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const orderColumns = `id, order_number, customer_id, customer_email, customer_name,
	payment_status, status, currency, subtotal, shipping_fee, tax_amount,
	total_amount, provider, provider_session_id, provider_payment_id,
	shipping_address, admin_notes, paid_at, shipped_at, delivered_at, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByOrderNumber(ctx context.Context, db *gorm.DB, orderNumber string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE order_number = ?`,
		orderNumber,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindBySession(ctx context.Context, db *gorm.DB, provider, sessionID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE provider = ? AND provider_session_id = ?`,
		provider,
		sessionID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, provider, paymentID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE provider = ? AND provider_payment_id = ?`,
		provider,
		paymentID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, sku, name, unit_price, quantity, line_total, created_at
		 FROM order_items WHERE order_id = ? ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, page pagination.Pagination) ([]*domain.Order, error) {
	var orders []*domain.Order
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerEmail != "" {
		stmt = stmt.Where("customer_email = ?", filter.CustomerEmail)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?,
			 status = CASE WHEN status = ? THEN ? ELSE status END,
			 provider_payment_id = CASE WHEN ? <> '' THEN ? ELSE provider_payment_id END,
			 paid_at = COALESCE(paid_at, ?),
			 updated_at = ?
		 WHERE id = ? AND payment_status IN (?, ?)`,
		domain.PaymentPaid,
		domain.StatusPending, domain.StatusConfirmed,
		providerPaymentID, providerPaymentID,
		paidAt,
		time.Now().UTC(),
		id,
		domain.PaymentPending, domain.PaymentFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaymentFailed(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		domain.PaymentFailed,
		time.Now().UTC(),
		id,
		domain.PaymentPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, updated_at = ?
		 WHERE id = ? AND payment_status = ?`,
		domain.PaymentRefunded,
		time.Now().UTC(),
		id,
		domain.PaymentPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, requirePaid bool, notes string, now time.Time) (bool, error) {
	query := `UPDATE orders
		 SET status = ?,
			 shipped_at = CASE WHEN ? = 'shipped' THEN COALESCE(shipped_at, ?) ELSE shipped_at END,
			 delivered_at = CASE WHEN ? = 'delivered' THEN COALESCE(delivered_at, ?) ELSE delivered_at END,
			 admin_notes = CASE WHEN ? <> '' THEN ? ELSE admin_notes END,
			 updated_at = ?
		 WHERE id = ? AND status = ?`
	args := []any{
		to,
		to, now,
		to, now,
		notes, notes,
		now,
		id, from,
	}
	if requirePaid {
		query += ` AND payment_status = ?`
		args = append(args, domain.PaymentPaid)
	}

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
