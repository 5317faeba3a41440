// Package domain contains core types for checkout session creation.
package domain

import (
	"context"
	"errors"
)

// CartItem references a catalog product by id. Pricing always comes
// from the catalog row, never from the client.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CustomerInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type ShippingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CreateSessionRequest struct {
	Items           []CartItem      `json:"items"`
	Customer        CustomerInfo    `json:"customer"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
}

type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	OrderNumber string `json:"order_number"`
	Currency    string `json:"currency"`
	Subtotal    int64  `json:"subtotal"`
	ShippingFee int64  `json:"shipping_fee"`
	TaxAmount   int64  `json:"tax_amount"`
	TotalAmount int64  `json:"total_amount"`
}

// SessionLine is a priced line sent to the payment provider.
type SessionLine struct {
	Name      string
	UnitPrice int64
	Quantity  int
}

// ProviderSessionRequest carries everything the provider needs to host
// the payment page. Metadata must round-trip through the provider
// untouched; the webhook rebuilds the order from it.
type ProviderSessionRequest struct {
	OrderNumber   string
	Currency      string
	CustomerEmail string
	Lines         []SessionLine
	ShippingFee   int64
	TaxAmount     int64
	Metadata      map[string]string
}

type ProviderSession struct {
	ID  string
	URL string
}

// ProviderClient creates hosted checkout sessions with the payment
// provider.
type ProviderClient interface {
	CreateSession(ctx context.Context, req ProviderSessionRequest) (ProviderSession, error)
}

type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error)
}

var (
	ErrEmptyCart          = errors.New("empty_cart")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidAddress     = errors.New("invalid_address")
	ErrUnknownProduct     = errors.New("unknown_product")
	ErrInactiveProduct    = errors.New("inactive_product")
	ErrUnsupportedCountry = errors.New("unsupported_country")
	ErrCurrencyMismatch   = errors.New("currency_mismatch")
	ErrProviderFailure    = errors.New("provider_failure")
)
