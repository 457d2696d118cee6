package models

import "time"

// AuditLog records important operations for auditing.
// Path and action are stored encrypted only.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"size:36;index"`
	PathEnc   string    `gorm:"size:1024"` // 加密后的路径
	Method    string    `gorm:"size:16"`
	ActionEnc string    `gorm:"size:4096"` // 加密后的动作 + 请求体摘要
	Status    int
	IP        string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index"`
}
