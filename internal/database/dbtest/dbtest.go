// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"testing"

	"osp-stores-backend/internal/database"
	"osp-stores-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database private to t.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func Store(t *testing.T, db *gorm.DB, name string, typ models.StoreType) models.Store {
	t.Helper()
	s := models.Store{Name: name, Type: typ}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func Item(t *testing.T, db *gorm.DB, code string, wastageAllowed bool) models.Item {
	t.Helper()
	it := models.Item{
		Code:             code,
		Name:             "Item " + code,
		Unit:             "m",
		Category:         "cable",
		Type:             models.ItemTypeCompany,
		IsWastageAllowed: wastageAllowed,
	}
	require.NoError(t, db.Create(&it).Error)
	return it
}

func User(t *testing.T, db *gorm.DB, email string, role models.UserRole, storeID *uint) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{
		Name:         email,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		StoreID:      storeID,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}
