package models

import "github.com/shopspring/decimal"

const (
	SenderUser = "USER"
	SenderAI   = "AI"
)

// Chat is one message of the assistant conversation.
type Chat struct {
	Base
	UserID  string `gorm:"size:36;index;not null" json:"userId"`
	Sender  string `gorm:"size:8;not null" json:"sender"` // USER / AI
	Message string `gorm:"type:text;not null" json:"message"`
}

// Record 记录 AI 对一条消息的分类结果
type Record struct {
	Base
	UserID         string          `gorm:"size:36;index;not null" json:"userId"`
	ChatID         string          `gorm:"size:36;index" json:"chatId"`
	TransactionID  *string         `gorm:"size:36" json:"transactionId"`
	Classification string          `gorm:"size:16;index;not null" json:"classification"` // INCOME / EXPENSE / RECURRING / BUDGET
	Amount         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Category       string          `gorm:"size:64" json:"category"`
}
