package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction 是一笔收入/支出/转账记录
// 金额用 decimal 存储，避免浮点误差
type Transaction struct {
	Base
	UserID      string          `gorm:"size:36;index;not null" json:"userId"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Type        string          `gorm:"size:16;index;not null" json:"type"` // INCOME / EXPENSE / TRANSFER
	Category    string          `gorm:"size:64;index;not null" json:"category"`
	Date        time.Time       `gorm:"index;not null" json:"date"`

	Shares []TransactionShare `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TransactionShare grants another user visibility of a transaction.
type TransactionShare struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	TransactionID string    `gorm:"size:36;not null;uniqueIndex:idx_share_tx_user" json:"transactionId"`
	UserID        string    `gorm:"size:36;not null;uniqueIndex:idx_share_tx_user;index" json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
}
