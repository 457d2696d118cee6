package models

import "github.com/shopspring/decimal"

// Budget is a monthly spending target; Name joins Transaction.Category exactly.
type Budget struct {
	Base
	UserID   string          `gorm:"size:36;not null;uniqueIndex:idx_budget_user_name_month" json:"userId"`
	Name     string          `gorm:"size:64;not null;uniqueIndex:idx_budget_user_name_month" json:"name"`
	Month    string          `gorm:"size:7;not null;uniqueIndex:idx_budget_user_name_month" json:"month"` // YYYY-MM
	Icon     string          `gorm:"size:16" json:"icon"`
	Color    string          `gorm:"size:32" json:"color"`
	Budgeted decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"budgeted"`
}
