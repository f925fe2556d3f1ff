/**
 * @description
 * Minimal Stripe client covering what the income-service needs: creating
 * hosted checkout sessions and verifying webhook payloads.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client.
 * - github.com/stripe/stripe-go/v79/webhook: webhook signature verification.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.stripe.com"

// ErrNotConfigured is returned when no secret key was provided.
var ErrNotConfigured = errors.New("stripe is not configured")

// CheckoutSessionParams describes a one-item payment checkout.
type CheckoutSessionParams struct {
	ProductName        string
	ProductDescription string
	AmountCents        int64
	Currency           string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
	ExpiresAt          time.Time
}

// CheckoutSession is the subset of Stripe's checkout session object we read.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Stripe REST API.
type Client struct {
	httpClient *resty.Client
}

// NewClient creates a configured Stripe client. An empty baseURL uses the
// public API.
func NewClient(secretKey, baseURL string) (*Client, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(secretKey).
		SetTimeout(15 * time.Second)

	return &Client{httpClient: httpClient}, nil
}

// CreateCheckoutSession opens a hosted payment page for a single line item.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", params.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	if params.ProductDescription != "" {
		form.Set("line_items[0][price_data][product_data][description]", params.ProductDescription)
	}
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}
	if !params.ExpiresAt.IsZero() {
		form.Set("expires_at", strconv.FormatInt(params.ExpiresAt.Unix(), 10))
	}
	for key, value := range params.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	var session CheckoutSession
	var failure apiError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		SetResult(&session).
		SetError(&failure).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("stripe returned status %d: %s", resp.StatusCode(), failure.Error.Message)
	}
	if session.ID == "" {
		return nil, errors.New("stripe returned a checkout session without an id")
	}
	return &session, nil
}

// DecodeCheckoutSession reads the checkout session carried by an event.
func DecodeCheckoutSession(event *Event) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, fmt.Errorf("invalid checkout session payload: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("checkout session payload has no id")
	}
	return &session, nil
}
