package database

import (
	"fmt"
	"time"

	"osp-stores-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the Postgres connection, migrates the schema and stores the
// handle in DB.
func Init(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	DB = db
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Store{},
		&models.User{},
		&models.Item{},
		&models.StockRequest{},
		&models.RequestLine{},
		&models.RequestActionLog{},
		&models.StockBatch{},
		&models.StockLevel{},
		&models.BatchConsumption{},
		&models.GRN{},
		&models.GRNLine{},
		&models.StockIssue{},
		&models.StockIssueLine{},
		&models.MRN{},
		&models.MRNLine{},
		&models.WastageRecord{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// ForUpdate adds a row lock on dialects that support one. SQLite serialises
// writers on its own.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
