// Package notification sends transactional email for order lifecycle
// moments. Delivery is best effort; a mail outage never blocks an
// order transition.
package notification

import "context"

type OrderNotification struct {
	OrderNumber   string
	CustomerEmail string
	CustomerName  string
	TotalAmount   int64
	Currency      string
}

type Provider interface {
	SendOrderConfirmation(ctx context.Context, n OrderNotification) error
	SendPaymentFailedAlert(ctx context.Context, n OrderNotification) error
	SendAdminOrderAlert(ctx context.Context, n OrderNotification) error
}

// NoOp is used when SMTP is not configured.
type NoOp struct{}

func (NoOp) SendOrderConfirmation(context.Context, OrderNotification) error  { return nil }
func (NoOp) SendPaymentFailedAlert(context.Context, OrderNotification) error { return nil }
func (NoOp) SendAdminOrderAlert(context.Context, OrderNotification) error    { return nil }
