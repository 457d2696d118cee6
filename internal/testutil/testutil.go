// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Juls95/Trinit-AI/internal/database"
	"github.com/Juls95/Trinit-AI/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with every table migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the shared-cache database alive and serialized
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewMockDB opens a GORM handle over go-sqlmock with the Postgres dialect.
func NewMockDB(t testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// CreateUser inserts a user whose external id is derived from email.
func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	local, _, _ := strings.Cut(email, "@")
	u := &models.User{
		ExternalID: "ext_" + email,
		Email:      email,
		Name:       local,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePaidUser is CreateUser with IsPaid set.
func CreatePaidUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := CreateUser(t, db, email)
	require.NoError(t, db.Model(u).Update("is_paid", true).Error)
	u.IsPaid = true
	return u
}

// Link makes a and b mutual contacts.
func Link(t testing.TB, db *gorm.DB, a, b *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&[]models.Contact{
		{UserID: a.ID, ContactID: b.ID},
		{UserID: b.ID, ContactID: a.ID},
	}).Error)
}
