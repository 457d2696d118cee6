package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Juls95/Trinit-AI/internal/models"

	"gorm.io/gorm"
)

// Identity is the profile the identity provider reports for a user.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
}

// DisplayName returns Name, or the email local part, or "User".
func (id Identity) DisplayName() string {
	if n := strings.TrimSpace(id.Name); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UsersByIDs loads users keyed by id. Unknown ids are skipped.
func (s *Store) UsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	ids = dedupe(ids)
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ResolveUser maps an authenticated identity to a local user: by external
// id first, then by email (linking the account), else a new user.
func (s *Store) ResolveUser(ctx context.Context, id Identity) (*models.User, error) {
	return s.upsertIdentity(ctx, id, false)
}

// SyncUser is ResolveUser for identity-provider webhooks: an existing user
// also gets the reported email, name and avatar.
func (s *Store) SyncUser(ctx context.Context, id Identity) (*models.User, error) {
	return s.upsertIdentity(ctx, id, true)
}

func (s *Store) upsertIdentity(ctx context.Context, id Identity, overwrite bool) (*models.User, error) {
	if id.ExternalID == "" {
		return nil, errors.New("resolve user: empty external id")
	}
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))

	var out *models.User
	err := s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var u models.User
		err := db.Where("external_id = ?", id.ExternalID).First(&u).Error
		if err == nil {
			if overwrite {
				updates := map[string]interface{}{
					"name":       id.DisplayName(),
					"avatar_url": id.AvatarURL,
				}
				if id.Email != "" {
					updates["email"] = id.Email
				}
				if err := db.Model(&u).Updates(updates).Error; err != nil {
					return fmt.Errorf("sync user: %w", err)
				}
			}
			out = &u
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find user: %w", err)
		}

		if id.Email == "" {
			return errors.New("resolve user: identity has no email")
		}

		err = db.Where("email = ?", id.Email).First(&u).Error
		if err == nil {
			err = db.Model(&u).Updates(map[string]interface{}{
				"external_id": id.ExternalID,
				"name":        id.DisplayName(),
				"avatar_url":  id.AvatarURL,
			}).Error
			if err != nil {
				return fmt.Errorf("link user: %w", err)
			}
			out = &u
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find user by email: %w", err)
		}

		u = models.User{
			ExternalID: id.ExternalID,
			Email:      id.Email,
			Name:       id.DisplayName(),
			AvatarURL:  id.AvatarURL,
		}
		if err := db.Create(&u).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		out = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateName changes the display name.
func (s *Store) UpdateName(ctx context.Context, userID, name string) error {
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", userID).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("update name: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Billing is the subscription state stored on a user.
type Billing struct {
	IsPaid               bool
	StripeCustomerID     string
	StripeSubscriptionID string
	Plan                 string
	PriceAmount          int64
	BillingPeriodEnd     *time.Time
}

// UpdateBilling overwrites every billing field, zero values included.
func (s *Store) UpdateBilling(ctx context.Context, userID string, b Billing) error {
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"is_paid":                b.IsPaid,
		"stripe_customer_id":     b.StripeCustomerID,
		"stripe_subscription_id": b.StripeSubscriptionID,
		"plan":                   b.Plan,
		"price_amount":           b.PriceAmount,
		"billing_period_end":     b.BillingPeriodEnd,
	})
	if res.Error != nil {
		return fmt.Errorf("update billing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// BillingOf extracts the billing state of u.
func BillingOf(u *models.User) Billing {
	return Billing{
		IsPaid:               u.IsPaid,
		StripeCustomerID:     u.StripeCustomerID,
		StripeSubscriptionID: u.StripeSubscriptionID,
		Plan:                 u.Plan,
		PriceAmount:          u.PriceAmount,
		BillingPeriodEnd:     u.BillingPeriodEnd,
	}
}

// DeleteUserByExternalID removes a user and everything they own. Transactions
// other users shared with them stay; only the share rows go.
func (s *Store) DeleteUserByExternalID(ctx context.Context, externalID string) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var u models.User
		if err := db.Where("external_id = ?", externalID).First(&u).Error; err != nil {
			return notFound(err)
		}

		owned := db.Model(&models.Transaction{}).Select("id").Where("user_id = ?", u.ID)
		steps := []struct {
			name  string
			query *gorm.DB
			model interface{}
		}{
			{"shares", db.Where("transaction_id IN (?) OR user_id = ?", owned, u.ID), &models.TransactionShare{}},
			{"transactions", db.Where("user_id = ?", u.ID), &models.Transaction{}},
			{"budgets", db.Where("user_id = ?", u.ID), &models.Budget{}},
			{"contacts", db.Where("user_id = ? OR contact_id = ?", u.ID, u.ID), &models.Contact{}},
			{"invitations", db.Where("sender_id = ?", u.ID), &models.Invitation{}},
			{"records", db.Where("user_id = ?", u.ID), &models.Record{}},
			{"chats", db.Where("user_id = ?", u.ID), &models.Chat{}},
			{"user", db.Where("id = ?", u.ID), &models.User{}},
		}
		for _, st := range steps {
			if err := st.query.Delete(st.model).Error; err != nil {
				return fmt.Errorf("delete %s: %w", st.name, err)
			}
		}
		return nil
	})
}

// CountUsers is used by the health check.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
