// Package billing talks to Stripe for Trinit Pro checkouts and
// subscriptions.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Juls95/Trinit-AI/internal/config"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"
)

// Plan is a Trinit Pro purchase option.
type Plan string

const (
	PlanMonthly  Plan = "monthly"
	PlanAnnual   Plan = "annual"
	PlanLifetime Plan = "lifetime"
)

// LifetimePriceAmount is recorded for one-off lifetime purchases, in cents.
const LifetimePriceAmount int64 = 19900

var (
	ErrNotConfigured = errors.New("billing: stripe is not configured")
	ErrInvalidPlan   = errors.New("billing: invalid plan")
)

// ParsePlan maps a request value to a Plan; empty means monthly.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PlanMonthly, nil
	case PlanMonthly, PlanAnnual, PlanLifetime:
		return p, nil
	}
	return "", ErrInvalidPlan
}

// Mode is the Stripe checkout mode used for a plan.
func (p Plan) Mode() stripe.CheckoutSessionMode {
	if p == PlanLifetime {
		return stripe.CheckoutSessionModePayment
	}
	return stripe.CheckoutSessionModeSubscription
}

type CheckoutInput struct {
	Plan   Plan
	UserID string
	Email  string
}

// CheckoutSession is the part of a Stripe checkout session Trinit uses.
type CheckoutSession struct {
	ID             string
	URL            string
	Mode           stripe.CheckoutSessionMode
	Complete       bool
	Paid           bool
	Email          string
	CustomerID     string
	SubscriptionID string
	Plan           Plan
	UserID         string
}

// Subscription is the part of a Stripe subscription Trinit uses.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            stripe.SubscriptionStatus
	Active            bool
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	PriceAmount       int64
}

// StripeAdapter wraps the stripe-go package level clients.
type StripeAdapter struct {
	cfg    config.StripeConfig
	appURL string
	logger *zap.Logger
}

// NewStripeAdapter sets the global stripe key. It returns ErrNotConfigured
// when no secret key is present so callers can run without billing.
func NewStripeAdapter(cfg config.StripeConfig, appURL string, logger *zap.Logger) (*StripeAdapter, error) {
	if cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	stripe.Key = cfg.SecretKey
	return &StripeAdapter{
		cfg:    cfg,
		appURL: strings.TrimRight(appURL, "/"),
		logger: logger,
	}, nil
}

func (a *StripeAdapter) priceID(p Plan) (string, error) {
	id := a.cfg.Prices[string(p)]
	if id == "" {
		return "", fmt.Errorf("%w: no price configured for %s", ErrInvalidPlan, p)
	}
	return id, nil
}

// CreateCheckoutSession starts a hosted checkout and returns its URL.
func (a *StripeAdapter) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	priceID, err := a.priceID(in.Plan)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"userId": in.UserID, "plan": string(in.Plan)}
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(in.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		Mode:       stripe.String(string(in.Plan.Mode())),
		SuccessURL: stripe.String(a.appURL + "/chat?payment=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(a.appURL + "/chat?payment=cancelled"),
		Metadata:   meta,
	}
	if in.Plan.Mode() == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	}
	params.Context = ctx

	a.logger.Debug("Creating Stripe checkout session",
		zap.String("user_id", in.UserID),
		zap.String("plan", string(in.Plan)))

	s, err := session.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe checkout session",
			zap.String("user_id", in.UserID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	a.logger.Info("Created Stripe checkout session",
		zap.String("session_id", s.ID),
		zap.String("user_id", in.UserID))
	return toCheckoutSession(s), nil
}

// GetCheckoutSession retrieves a session for payment verification.
func (a *StripeAdapter) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(id, params)
	if err != nil {
		a.logger.Error("Failed to get Stripe checkout session",
			zap.String("session_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get checkout session: %w", err)
	}
	return toCheckoutSession(s), nil
}

// GetSubscription retrieves the current state of a subscription.
func (a *StripeAdapter) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		a.logger.Error("Failed to get Stripe subscription",
			zap.String("subscription_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}
	return toSubscription(sub), nil
}

// CancelAtPeriodEnd keeps the subscription until the paid period ends.
func (a *StripeAdapter) CancelAtPeriodEnd(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx

	sub, err := subscription.Update(id, params)
	if err != nil {
		a.logger.Error("Failed to cancel Stripe subscription",
			zap.String("subscription_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	a.logger.Info("Stripe subscription set to cancel at period end",
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)))
	return toSubscription(sub), nil
}

// GetCustomerEmail returns the email on a Stripe customer; empty for
// deleted customers.
func (a *StripeAdapter) GetCustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := customer.Get(customerID, params)
	if err != nil {
		a.logger.Error("Failed to get Stripe customer",
			zap.String("customer_id", customerID),
			zap.Error(err))
		return "", fmt.Errorf("stripe: failed to get customer: %w", err)
	}
	if c.Deleted {
		return "", nil
	}
	return c.Email, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Mode:     s.Mode,
		Complete: s.Status == stripe.CheckoutSessionStatusComplete,
		Paid:     s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Email:    s.CustomerEmail,
		Plan:     PlanMonthly,
	}
	if out.Email == "" && s.CustomerDetails != nil {
		out.Email = s.CustomerDetails.Email
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if p, err := ParsePlan(s.Metadata["plan"]); err == nil {
		out.Plan = p
	}
	out.UserID = s.Metadata["userId"]
	return out
}

func toSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            sub.Status,
		Active:            sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceAmount = sub.Items.Data[0].Price.UnitAmount
	}
	return out
}
