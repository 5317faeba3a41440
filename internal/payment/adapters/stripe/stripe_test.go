package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/shopdome/commerce/internal/payment/domain"
)

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	created := time.Now().UTC().Unix()
	event := map[string]any{
		"id":      "evt_cs",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"payment_intent": "pi_1",
				"amount_total":   7400,
				"currency":       "usd",
				"payment_status": "paid",
				"created":        created,
				"metadata": map[string]any{
					"order_number": "SDM-20260901-A2C4",
					"customer_id":  "123456789",
				},
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	parsed, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if parsed.Type != paymentdomain.EventTypeCheckoutCompleted {
		t.Fatalf("expected type %s, got %s", paymentdomain.EventTypeCheckoutCompleted, parsed.Type)
	}
	if parsed.ProviderSessionID != "cs_1" {
		t.Fatalf("expected session cs_1, got %s", parsed.ProviderSessionID)
	}
	if parsed.ProviderPaymentID != "pi_1" {
		t.Fatalf("expected payment intent pi_1, got %s", parsed.ProviderPaymentID)
	}
	if parsed.Amount != 7400 {
		t.Fatalf("expected amount 7400, got %d", parsed.Amount)
	}
	if parsed.Metadata["order_number"] != "SDM-20260901-A2C4" {
		t.Fatalf("expected metadata to round-trip, got %v", parsed.Metadata)
	}
}

func TestParseCheckoutSessionUnpaidIsPending(t *testing.T) {
	created := time.Now().UTC().Unix()
	event := map[string]any{
		"id":      "evt_cs_unpaid",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_2",
				"amount_total":   7400,
				"currency":       "usd",
				"payment_status": "unpaid",
				"created":        created,
			},
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	parsed, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Pending {
		t.Fatalf("unpaid session must parse as pending")
	}
	if parsed.Type != paymentdomain.EventTypeCheckoutCompleted {
		t.Fatalf("expected checkout completed, got %s", parsed.Type)
	}
}

func TestParseCheckoutSessionPaidNotPending(t *testing.T) {
	created := time.Now().UTC().Unix()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_cs_paid",
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_3",
				"amount_total":   7400,
				"currency":       "usd",
				"payment_status": "paid",
				"created":        created,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	parsed, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Pending {
		t.Fatalf("paid session must not parse as pending")
	}
}

func TestParsePaymentEvents(t *testing.T) {
	created := time.Now().UTC().Unix()

	tests := []struct {
		name        string
		event       any
		wantType    string
		wantAmount  int64
		wantPayment string
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id":      "evt_pi",
			"type":    "payment_intent.succeeded",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":              "pi_1",
					"amount":          2500,
					"amount_received": 2500,
					"currency":        "usd",
					"created":         created,
				},
			},
		},
		wantType:    paymentdomain.EventTypePaymentSucceeded,
		wantAmount:  2500,
		wantPayment: "pi_1",
	}, {
		name: "payment_intent.payment_failed",
		event: map[string]any{
			"id":      "evt_pi_failed",
			"type":    "payment_intent.payment_failed",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":       "pi_2",
					"amount":   2500,
					"currency": "usd",
					"created":  created,
				},
			},
		},
		wantType:    paymentdomain.EventTypePaymentFailed,
		wantAmount:  2500,
		wantPayment: "pi_2",
	}, {
		name: "charge.refunded",
		event: map[string]any{
			"id":      "evt_charge",
			"type":    "charge.refunded",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":              "ch_1",
					"payment_intent":  "pi_3",
					"amount":          5000,
					"amount_refunded": 1200,
					"currency":        "usd",
					"created":         created,
				},
			},
		},
		wantType:    paymentdomain.EventTypeRefunded,
		wantAmount:  1200,
		wantPayment: "pi_3",
	}}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if event.Amount != tt.wantAmount {
				t.Fatalf("expected amount %d, got %d", tt.wantAmount, event.Amount)
			}
			if event.ProviderPaymentID != tt.wantPayment {
				t.Fatalf("expected payment id %s, got %s", tt.wantPayment, event.ProviderPaymentID)
			}
		})
	}
}

func TestParseUnknownEventIgnored(t *testing.T) {
	payload := []byte(`{"id":"evt_x","type":"customer.created","created":1,"data":{"object":{}}}`)
	adapter := &Adapter{webhookSecret: "whsec_test"}
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}
}
