package models

import "time"

type StoreType string

const (
	StoreTypeMain StoreType = "MAIN"
	StoreTypeSub  StoreType = "SUB"
)

// Store: a physical stores location. SUB stores are fed from a MAIN store or
// local purchase, MAIN stores from SLT or local purchase.
type Store struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;not null;unique"`
	Type      StoreType `gorm:"size:10;not null"`
	Location  string    `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
