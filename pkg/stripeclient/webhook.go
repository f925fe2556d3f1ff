package stripeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79/webhook"
)

// DefaultTolerance is how old a signed webhook may be.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Event is the part of a Stripe webhook event the income-service reads.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ConstructEvent verifies the Stripe-Signature header over payload with
// stripe-go and adapts the result to Event. Events are accepted whatever API
// version the account is pinned to.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}

	verified, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrTooOld):
		return nil, ErrStaleTimestamp
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader), errors.Is(err, webhook.ErrNoValidSignature):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	if verified.Type == "" {
		return nil, errors.New("webhook payload has no event type")
	}
	event := &Event{ID: verified.ID, Type: string(verified.Type)}
	if verified.Data != nil {
		event.Data.Object = verified.Data.Raw
	}
	return event, nil
}

// SignatureHeader builds a Stripe-Signature header value for payload signed
// at timestamp. Used to exercise webhook endpoints.
func SignatureHeader(timestamp int64, payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Unix(timestamp, 0),
	})
	return signed.Header
}
