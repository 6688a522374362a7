package models

import "time"

// WastageRecord: stock written off outside the request workflow.
type WastageRecord struct {
	ID           uint    `gorm:"primaryKey"`
	StoreID      uint    `gorm:"index;not null"`
	ItemID       uint    `gorm:"index;not null"`
	Item         Item    `gorm:"foreignKey:ItemID"`
	Quantity     float64 `gorm:"not null"`
	Reason       string  `gorm:"size:500;not null"`
	RecordedByID uint    `gorm:"index;not null"`
	CreatedAt    time.Time
}
