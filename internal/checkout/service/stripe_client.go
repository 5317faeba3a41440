package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopdome/commerce/internal/checkout/domain"
)

type stripeCheckoutSession struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type stripeClient struct {
	apiKey     string
	successURL string
	cancelURL  string
	client     *http.Client
}

// NewStripeClient builds a checkout session client against the Stripe
// REST API. Requests carry an Idempotency-Key so retried calls cannot
// open a second session for the same order.
func NewStripeClient(apiKey, successURL, cancelURL string) domain.ProviderClient {
	return &stripeClient{
		apiKey:     strings.TrimSpace(apiKey),
		successURL: strings.TrimSpace(successURL),
		cancelURL:  strings.TrimSpace(cancelURL),
		client:     &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *stripeClient) CreateSession(ctx context.Context, req domain.ProviderSessionRequest) (domain.ProviderSession, error) {
	if c.apiKey == "" {
		return domain.ProviderSession{}, domain.ErrProviderFailure
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("success_url", sessionRedirectURL(c.successURL, req.OrderNumber))
	values.Set("cancel_url", sessionRedirectURL(c.cancelURL, req.OrderNumber))
	values.Set("customer_email", req.CustomerEmail)
	values.Set("client_reference_id", req.OrderNumber)
	values.Set("payment_intent_data[metadata][order_number]", req.OrderNumber)

	currency := strings.ToLower(req.Currency)
	idx := 0
	for _, line := range req.Lines {
		prefix := fmt.Sprintf("line_items[%d]", idx)
		values.Set(prefix+"[price_data][currency]", currency)
		values.Set(prefix+"[price_data][product_data][name]", line.Name)
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitPrice, 10))
		values.Set(prefix+"[quantity]", strconv.Itoa(line.Quantity))
		idx++
	}
	if req.ShippingFee > 0 {
		prefix := fmt.Sprintf("line_items[%d]", idx)
		values.Set(prefix+"[price_data][currency]", currency)
		values.Set(prefix+"[price_data][product_data][name]", "Shipping")
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(req.ShippingFee, 10))
		values.Set(prefix+"[quantity]", "1")
		idx++
	}
	if req.TaxAmount > 0 {
		prefix := fmt.Sprintf("line_items[%d]", idx)
		values.Set(prefix+"[price_data][currency]", currency)
		values.Set(prefix+"[price_data][product_data][name]", "Tax")
		values.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(req.TaxAmount, 10))
		values.Set(prefix+"[quantity]", "1")
		idx++
	}

	for key, value := range req.Metadata {
		values.Set("metadata["+key+"]", value)
	}

	session, err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, "order:"+req.OrderNumber)
	if err != nil {
		return domain.ProviderSession{}, err
	}
	return domain.ProviderSession{ID: session.ID, URL: session.URL}, nil
}

// sessionRedirectURL carries the order number on the redirect so the
// storefront can show it when the customer lands back. A
// {ORDER_NUMBER} placeholder in the configured URL is substituted;
// otherwise the number is appended as a query parameter.
func sessionRedirectURL(base, orderNumber string) string {
	if strings.Contains(base, "{ORDER_NUMBER}") {
		return strings.ReplaceAll(base, "{ORDER_NUMBER}", url.QueryEscape(orderNumber))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "order_number=" + url.QueryEscape(orderNumber)
}

func (c *stripeClient) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
) (stripeCheckoutSession, error) {
	encoded := ""
	if values != nil {
		encoded = values.Encode()
	}

	buildReq := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, "https://api.stripe.com"+path, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if values != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		return req, nil
	}

	req, err := buildReq()
	if err != nil {
		return stripeCheckoutSession{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// One retry covers transient transport failures. The idempotency
		// key makes the second attempt safe.
		req, rerr := buildReq()
		if rerr != nil {
			return stripeCheckoutSession{}, rerr
		}
		resp, err = c.client.Do(req)
		if err != nil {
			return stripeCheckoutSession{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return stripeCheckoutSession{}, domain.ErrProviderFailure
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			return stripeCheckoutSession{}, domain.ErrProviderFailure
		}
		return stripeCheckoutSession{}, fmt.Errorf("%w: %s", domain.ErrProviderFailure, message)
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return stripeCheckoutSession{}, err
	}
	if session.ID == "" {
		return stripeCheckoutSession{}, domain.ErrProviderFailure
	}
	return session, nil
}
