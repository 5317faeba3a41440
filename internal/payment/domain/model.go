package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the durable copy of every accepted provider event.
// The unique (provider, provider_event_id) pair makes redelivery a
// no-op at the database level.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         *snowflake.ID  `json:"order_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeCheckoutCompleted = "checkout_completed"
	EventTypePaymentSucceeded  = "payment_succeeded"
	EventTypePaymentFailed     = "payment_failed"
	EventTypeRefunded          = "refunded"
)

// PaymentEvent is the canonical payment event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderSessionID string
	ProviderPaymentID string
	Type              string
	Amount            int64
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte

	// Pending marks a session that completed before the money settled
	// (delayed payment methods). The order is materialized but not
	// marked paid; a later payment_succeeded settles it.
	Pending bool

	// Metadata is the checkout session metadata echoed back by the
	// provider. checkout_completed events rebuild the order from it,
	// and payment_intent events fall back to its order_number when the
	// payment id is not on the order yet.
	Metadata map[string]string
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// PaymentAdapter verifies and normalizes provider webhooks.
type PaymentAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Service ingests raw provider webhooks. IngestWebhook returns the
// provider's event type for the acknowledgement body.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (string, error)
}
