package database

import (
	"fmt"

	"github.com/Juls95/Trinit-AI/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Transaction{},
		&models.TransactionShare{},
		&models.Budget{},
		&models.Contact{},
		&models.Invitation{},
		&models.Chat{},
		&models.Record{},
		&models.Subscriber{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
