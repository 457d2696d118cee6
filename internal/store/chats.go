package store

import (
	"context"
	"fmt"

	"github.com/Juls95/Trinit-AI/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateChat(ctx context.Context, c *models.Chat) error {
	if err := s.conn(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// RecentChats returns the user's last n messages, newest first.
func (s *Store) RecentChats(ctx context.Context, userID string, n int) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("recent chats: %w", err)
	}
	return chats, nil
}

func (s *Store) CreateRecord(ctx context.Context, r *models.Record) error {
	if err := s.conn(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// CreateClassified stores a chat classification record and, when tx is not
// nil, the transaction it produced. Both rows commit together.
func (s *Store) CreateClassified(ctx context.Context, tx *models.Transaction, r *models.Record) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		if tx != nil {
			tx.Date = tx.Date.UTC()
			if err := db.Omit(clause.Associations).Create(tx).Error; err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}
			r.TransactionID = &tx.ID
		}
		if err := db.Create(r).Error; err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return nil
	})
}

// RecentRecords returns the user's last n classification records.
func (s *Store) RecentRecords(ctx context.Context, userID string, n int) ([]models.Record, error) {
	var records []models.Record
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	return records, nil
}

// CountRecords counts the user's records with classification.
func (s *Store) CountRecords(ctx context.Context, userID, classification string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Record{}).
		Where("user_id = ? AND classification = ?", userID, classification).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
