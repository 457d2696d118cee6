package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Juls95/Trinit-AI/internal/ledger"
	"github.com/Juls95/Trinit-AI/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultBudgetIcon  = "💰"
	DefaultBudgetColor = "bg-blue-500"
)

// defaultBudgets seeds a user's first month.
var defaultBudgets = []models.Budget{
	{Name: "Housing", Icon: "🏠", Color: "bg-blue-500", Budgeted: decimal.NewFromInt(1500)},
	{Name: "Food", Icon: "🍕", Color: "bg-orange-500", Budgeted: decimal.NewFromInt(600)},
	{Name: "Transportation", Icon: "🚗", Color: "bg-purple-500", Budgeted: decimal.NewFromInt(300)},
	{Name: "Entertainment", Icon: "🎮", Color: "bg-pink-500", Budgeted: decimal.NewFromInt(200)},
	{Name: "Utilities", Icon: "⚡", Color: "bg-yellow-500", Budgeted: decimal.NewFromInt(250)},
	{Name: "Health", Icon: "💊", Color: "bg-green-500", Budgeted: decimal.NewFromInt(150)},
	{Name: "Shopping", Icon: "🛍️", Color: "bg-red-500", Budgeted: decimal.NewFromInt(300)},
	{Name: "Savings", Icon: "🏦", Color: "bg-teal-500", Budgeted: decimal.NewFromInt(500)},
}

// BudgetsForMonth lists the user's budgets for month (YYYY-MM), oldest first.
func (s *Store) BudgetsForMonth(ctx context.Context, userID, month string) ([]models.Budget, error) {
	var budgets []models.Budget
	err := s.conn(ctx).
		Where("user_id = ? AND month = ?", userID, month).
		Order("created_at ASC, name ASC").
		Find(&budgets).Error
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// SeedDefaultBudgets creates the default categories for month. Existing
// names are kept as they are.
func (s *Store) SeedDefaultBudgets(ctx context.Context, userID, month string) error {
	rows := make([]models.Budget, 0, len(defaultBudgets))
	for _, b := range defaultBudgets {
		b.UserID = userID
		b.Month = month
		rows = append(rows, b)
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("seed budgets: %w", err)
	}
	return nil
}

// UpsertBudget creates or updates the budget keyed by (user, name, month).
// Empty icon and color fall back to the defaults.
func (s *Store) UpsertBudget(ctx context.Context, b *models.Budget) error {
	if b.Icon == "" {
		b.Icon = DefaultBudgetIcon
	}
	if b.Color == "" {
		b.Color = DefaultBudgetColor
	}
	return s.conn(ctx).Transaction(func(db *gorm.DB) error {
		var existing models.Budget
		err := db.Where("user_id = ? AND name = ? AND month = ?", b.UserID, b.Name, b.Month).First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find budget: %w", err)
			}
			if err := db.Create(b).Error; err != nil {
				return fmt.Errorf("create budget: %w", err)
			}
			return nil
		}

		err = db.Model(&existing).Updates(map[string]interface{}{
			"budgeted": b.Budgeted,
			"icon":     b.Icon,
			"color":    b.Color,
		}).Error
		if err != nil {
			return fmt.Errorf("update budget: %w", err)
		}
		existing.Budgeted = b.Budgeted
		existing.Icon = b.Icon
		existing.Color = b.Color
		*b = existing
		return nil
	})
}

// BudgetPatch holds the optional fields of a partial update.
type BudgetPatch struct {
	Name     *string
	Icon     *string
	Color    *string
	Budgeted *decimal.Decimal
}

// UpdateBudget applies patch to a budget owned by userID.
func (s *Store) UpdateBudget(ctx context.Context, userID, id string, patch BudgetPatch) (*models.Budget, error) {
	var b models.Budget
	if err := s.conn(ctx).Where("id = ? AND user_id = ?", id, userID).First(&b).Error; err != nil {
		return nil, notFound(err)
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Icon != nil {
		updates["icon"] = *patch.Icon
	}
	if patch.Color != nil {
		updates["color"] = *patch.Color
	}
	if patch.Budgeted != nil {
		updates["budgeted"] = *patch.Budgeted
	}
	if len(updates) == 0 {
		return &b, nil
	}

	if err := s.conn(ctx).Model(&b).Updates(updates).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update budget: %w", err)
	}
	if err := s.conn(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// DeleteBudget removes a budget owned by userID.
func (s *Store) DeleteBudget(ctx context.Context, userID, id string) error {
	res := s.conn(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Budget{})
	if res.Error != nil {
		return fmt.Errorf("delete budget: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ToLedgerBudgets converts persisted budgets for the aggregator.
func ToLedgerBudgets(budgets []models.Budget) []ledger.Budget {
	out := make([]ledger.Budget, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, ledger.Budget{
			ID:       b.ID,
			UserID:   b.UserID,
			Name:     b.Name,
			Icon:     b.Icon,
			Color:    b.Color,
			Month:    b.Month,
			Budgeted: b.Budgeted,
		})
	}
	return out
}
