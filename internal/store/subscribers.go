package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Juls95/Trinit-AI/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscribeResult tells the caller which branch Subscribe took.
type SubscribeResult int

const (
	Subscribed SubscribeResult = iota
	Resubscribed
	AlreadySubscribed
)

// Subscribe adds email to the newsletter, reactivating an inactive entry.
func (s *Store) Subscribe(ctx context.Context, email string) (SubscribeResult, error) {
	var result SubscribeResult
	err := s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var sub models.Subscriber
		err := db.Where("email = ?", email).First(&sub).Error
		switch {
		case err == nil && sub.Active:
			result = AlreadySubscribed
			return nil
		case err == nil:
			result = Resubscribed
			return db.Model(&sub).Update("active", true).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		result = Subscribed
		return db.Create(&models.Subscriber{Email: email, Token: uuid.NewString(), Active: true}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	return result, nil
}

// Unsubscribe deactivates the subscriber holding token.
func (s *Store) Unsubscribe(ctx context.Context, token string) error {
	res := s.conn(ctx).Model(&models.Subscriber{}).Where("token = ?", token).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("unsubscribe: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
