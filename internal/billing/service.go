package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Juls95/Trinit-AI/internal/models"
	"github.com/Juls95/Trinit-AI/internal/store"
	"go.uber.org/zap"
)

var (
	ErrPaymentIncomplete = errors.New("billing: payment not completed")
	ErrSessionMismatch   = errors.New("billing: session does not match user")
	ErrNoSubscription    = errors.New("billing: no active subscription to cancel")
)

// Provider is the payment backend. StripeAdapter implements it.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, id string) (*Subscription, error)
	GetCustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Users is the slice of the store the billing flows write to.
type Users interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateBilling(ctx context.Context, userID string, b store.Billing) error
}

// Service applies checkout and subscription outcomes to local users.
type Service struct {
	provider Provider
	users    Users
	logger   *zap.Logger
}

func NewService(provider Provider, users Users, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, users: users, logger: logger}
}

// Checkout creates a hosted checkout for u and returns its URL.
func (s *Service) Checkout(ctx context.Context, u *models.User, plan Plan) (string, error) {
	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutInput{
		Plan:   plan,
		UserID: u.ID,
		Email:  u.Email,
	})
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// Verify confirms a finished checkout for u right after the redirect,
// without waiting for the webhook.
func (s *Service) Verify(ctx context.Context, u *models.User, sessionID string) (store.Billing, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return store.Billing{}, err
	}
	if !sess.Complete || !sess.Paid {
		return store.Billing{}, ErrPaymentIncomplete
	}
	if !strings.EqualFold(sess.Email, u.Email) {
		return store.Billing{}, ErrSessionMismatch
	}

	b, err := s.billingFromCheckout(ctx, sess, store.BillingOf(u))
	if err != nil {
		return store.Billing{}, err
	}
	if err := s.users.UpdateBilling(ctx, u.ID, b); err != nil {
		return store.Billing{}, err
	}
	return b, nil
}

// Cancel asks Stripe to end u's subscription at the end of the period.
func (s *Service) Cancel(ctx context.Context, u *models.User) error {
	if u.StripeSubscriptionID == "" {
		return ErrNoSubscription
	}
	_, err := s.provider.CancelAtPeriodEnd(ctx, u.StripeSubscriptionID)
	return err
}

// HandleEvent applies a verified webhook event. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		sess, err := ev.CheckoutSession()
		if err != nil {
			return err
		}
		return s.applyCheckout(ctx, sess)
	case EventSubscriptionUpdated:
		sub, err := ev.Subscription()
		if err != nil {
			return err
		}
		return s.applySubscription(ctx, sub, false)
	case EventSubscriptionDeleted:
		sub, err := ev.Subscription()
		if err != nil {
			return err
		}
		return s.applySubscription(ctx, sub, true)
	default:
		s.logger.Debug("ignoring stripe event", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
		return nil
	}
}

func (s *Service) applyCheckout(ctx context.Context, sess *CheckoutSession) error {
	if sess.Email == "" {
		return nil
	}
	u, err := s.userByEmail(ctx, sess.Email)
	if err != nil || u == nil {
		return err
	}
	b, err := s.billingFromCheckout(ctx, sess, store.BillingOf(u))
	if err != nil {
		return err
	}
	if err := s.users.UpdateBilling(ctx, u.ID, b); err != nil {
		return err
	}
	s.logger.Info("checkout applied",
		zap.String("user_id", u.ID),
		zap.String("plan", b.Plan))
	return nil
}

func (s *Service) applySubscription(ctx context.Context, sub *Subscription, deleted bool) error {
	if sub.CustomerID == "" {
		return nil
	}
	email, err := s.provider.GetCustomerEmail(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	if email == "" {
		return nil
	}
	u, err := s.userByEmail(ctx, email)
	if err != nil || u == nil {
		return err
	}

	b := store.BillingOf(u)
	if deleted {
		b.IsPaid = false
		b.StripeSubscriptionID = ""
		b.Plan = ""
		b.PriceAmount = 0
		b.BillingPeriodEnd = nil
	} else {
		b.IsPaid = sub.Active
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			b.BillingPeriodEnd = &end
		}
	}
	if err := s.users.UpdateBilling(ctx, u.ID, b); err != nil {
		return err
	}
	s.logger.Info("subscription applied",
		zap.String("user_id", u.ID),
		zap.String("status", string(sub.Status)),
		zap.Bool("deleted", deleted))
	return nil
}

// billingFromCheckout merges a paid session into the current state.
func (s *Service) billingFromCheckout(ctx context.Context, sess *CheckoutSession, b store.Billing) (store.Billing, error) {
	b.IsPaid = true
	b.Plan = string(sess.Plan)
	if sess.CustomerID != "" {
		b.StripeCustomerID = sess.CustomerID
	}

	switch {
	case sess.Mode == PlanMonthly.Mode() && sess.SubscriptionID != "":
		sub, err := s.provider.GetSubscription(ctx, sess.SubscriptionID)
		if err != nil {
			return store.Billing{}, fmt.Errorf("load subscription: %w", err)
		}
		b.StripeSubscriptionID = sub.ID
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			b.BillingPeriodEnd = &end
		}
		if sub.PriceAmount > 0 {
			b.PriceAmount = sub.PriceAmount
		}
	case sess.Plan == PlanLifetime:
		b.PriceAmount = LifetimePriceAmount
		b.BillingPeriodEnd = nil
	}
	return b, nil
}

// userByEmail returns nil, nil when no local user has the email.
func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("billing event for unknown email", zap.String("email", email))
		return nil, nil
	}
	return u, err
}
