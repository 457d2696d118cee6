package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter narrows a transaction query. From is inclusive, To exclusive.
// Times are compared in UTC, the zone every row is written in.
type Filter struct {
	From  *time.Time
	To    *time.Time
	Type  ledger.Type
	Limit int
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.From != nil {
		q = q.Where("transactions.date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("transactions.date < ?", f.To.UTC())
	}
	if f.Type != "" {
		q = q.Where("transactions.type = ?", string(f.Type))
	}
	q = q.Order("transactions.date DESC, transactions.created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

// OwnedTransactions returns the user's own transactions with their shares.
func (s *Store) OwnedTransactions(ctx context.Context, userID string, f Filter) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := s.conn(ctx).Preload("Shares").Where("transactions.user_id = ?", userID)
	if err := f.apply(q).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("owned transactions: %w", err)
	}
	return txs, nil
}

// SharedInTransactions returns transactions other users shared with userID.
func (s *Store) SharedInTransactions(ctx context.Context, userID string, f Filter) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := s.conn(ctx).
		Preload("Shares").
		Where("transactions.id IN (?)",
			s.conn(ctx).Model(&models.TransactionShare{}).Select("transaction_id").Where("user_id = ?", userID)).
		Where("transactions.user_id <> ?", userID)
	if err := f.apply(q).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("shared transactions: %w", err)
	}
	return txs, nil
}

// OwnedTransaction loads one transaction owned by ownerID.
func (s *Store) OwnedTransaction(ctx context.Context, ownerID, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.conn(ctx).Preload("Shares").
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&tx).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

// CreateTransaction inserts tx and one share per recipient atomically.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction, shareIDs []string) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		return createTransaction(db, tx, shareIDs)
	})
}

// CreateLimitedTransaction is CreateTransaction for an owner allowed at most
// limit transactions created since since. The owner row is locked while
// counting, so concurrent calls cannot both take the last slot. It returns
// ErrQuotaExceeded and writes nothing once the limit is reached.
func (s *Store) CreateLimitedTransaction(ctx context.Context, tx *models.Transaction, shareIDs []string, since time.Time, limit int64) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var owner models.User
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", tx.UserID).
			Take(&owner).Error
		if err != nil {
			return fmt.Errorf("lock owner: %w", err)
		}

		var n int64
		err = db.Model(&models.Transaction{}).
			Where("user_id = ? AND created_at >= ?", tx.UserID, since.UTC()).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		if n >= limit {
			return ErrQuotaExceeded
		}
		return createTransaction(db, tx, shareIDs)
	})
}

func createTransaction(db *gorm.DB, tx *models.Transaction, shareIDs []string) error {
	tx.Date = tx.Date.UTC()
	if err := db.Omit(clause.Associations).Create(tx).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	shares, err := insertShares(db, tx.ID, shareIDs)
	if err != nil {
		return err
	}
	tx.Shares = shares
	return nil
}

// ReplaceShares swaps the recipient set of a transaction owned by ownerID.
func (s *Store) ReplaceShares(ctx context.Context, ownerID, txID string, shareIDs []string) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var tx models.Transaction
		if err := db.Where("id = ? AND user_id = ?", txID, ownerID).First(&tx).Error; err != nil {
			return notFound(err)
		}
		if err := db.Where("transaction_id = ?", txID).Delete(&models.TransactionShare{}).Error; err != nil {
			return fmt.Errorf("delete shares: %w", err)
		}
		shares, err := insertShares(db, txID, shareIDs)
		if err != nil {
			return err
		}
		tx.Shares = shares
		out = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertShares(db *gorm.DB, txID string, userIDs []string) ([]models.TransactionShare, error) {
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return []models.TransactionShare{}, nil
	}
	shares := make([]models.TransactionShare, 0, len(ids))
	for _, uid := range ids {
		shares = append(shares, models.TransactionShare{TransactionID: txID, UserID: uid})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&shares).Error; err != nil {
		return nil, fmt.Errorf("create shares: %w", err)
	}
	return shares, nil
}

// DeleteTransaction removes a transaction owned by ownerID and its shares.
// Recipients get ErrNotFound.
func (s *Store) DeleteTransaction(ctx context.Context, ownerID, txID string) error {
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var n int64
		if err := db.Model(&models.Transaction{}).Where("id = ? AND user_id = ?", txID, ownerID).Count(&n).Error; err != nil {
			return fmt.Errorf("find transaction: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := db.Where("transaction_id = ?", txID).Delete(&models.TransactionShare{}).Error; err != nil {
			return fmt.Errorf("delete shares: %w", err)
		}
		if err := db.Where("id = ?", txID).Delete(&models.Transaction{}).Error; err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
}

// CountCreatedSince counts the user's transactions created at or after since.
func (s *Store) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// ToEntry converts a persisted transaction for the aggregator.
func ToEntry(t models.Transaction) ledger.Entry {
	shared := make([]string, 0, len(t.Shares))
	for _, sh := range t.Shares {
		shared = append(shared, sh.UserID)
	}
	return ledger.Entry{
		ID:          t.ID,
		OwnerID:     t.UserID,
		Description: t.Description,
		Amount:      t.Amount,
		Type:        ledger.Type(t.Type),
		Category:    t.Category,
		Date:        t.Date,
		CreatedAt:   t.CreatedAt,
		SharedWith:  shared,
	}
}

// ToEntries converts a slice with ToEntry.
func ToEntries(txs []models.Transaction) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(txs))
	for _, t := range txs {
		out = append(out, ToEntry(t))
	}
	return out
}
