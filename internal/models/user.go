package models

import "time"

// User is a local account linked to the external identity provider.
// Billing fields mirror the Stripe customer and subscription state.
type User struct {
	Base
	ExternalID string `gorm:"size:128;uniqueIndex" json:"externalId"`
	Email      string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name       string `gorm:"size:128" json:"name"`
	AvatarURL  string `gorm:"size:512" json:"avatarUrl"`

	IsPaid               bool       `gorm:"not null;default:false" json:"isPaid"`
	StripeCustomerID     string     `gorm:"size:64;index" json:"-"`
	StripeSubscriptionID string     `gorm:"size:64;index" json:"-"`
	Plan                 string     `gorm:"size:16" json:"plan"` // monthly / annual / lifetime
	PriceAmount          int64      `json:"priceAmount"`         // 分（cents）
	BillingPeriodEnd     *time.Time `json:"billingPeriodEnd"`
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
