package models

// Subscriber is a newsletter signup; it is not tied to a user account.
type Subscriber struct {
	Base
	Email  string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Token  string `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Active bool   `gorm:"not null;default:true" json:"active"`
}
