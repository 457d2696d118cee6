package billing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Event types consumed by the webhook endpoint.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// Event is a verified webhook delivery.
type Event struct {
	ID   string
	Type string
	raw  json.RawMessage
}

// ParseEvent verifies the Stripe-Signature header against secret.
func ParseEvent(payload []byte, header, secret string) (*Event, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil {
		out.raw = ev.Data.Raw
	}
	return out, nil
}

// CheckoutSession decodes the event object of a checkout event.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return toCheckoutSession(&s), nil
}

// Subscription decodes the event object of a subscription event.
func (e *Event) Subscription() (*Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(e.raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return toSubscription(&sub), nil
}
