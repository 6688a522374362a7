package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GRN: goods receipt note, the only document that brings new stock in from
// outside the organisation.
type GRN struct {
	ID             uint       `gorm:"primaryKey"`
	GRNNumber      string     `gorm:"size:40;not null;uniqueIndex"`
	StoreID        uint       `gorm:"index;not null"`
	Store          Store      `gorm:"foreignKey:StoreID"`
	SourceType     SourceType `gorm:"size:20;not null"`
	Supplier       string     `gorm:"size:150"`
	ReceivedByID   uint       `gorm:"index;not null"`
	RequestID      *uint      `gorm:"index"`
	SLTReferenceID string     `gorm:"size:60"`
	Remarks        string     `gorm:"size:500"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines []GRNLine `gorm:"foreignKey:GRNID;constraint:OnDelete:CASCADE"`
}

type GRNLine struct {
	ID        uint            `gorm:"primaryKey"`
	GRNID     uint            `gorm:"index;not null"`
	ItemID    uint            `gorm:"index;not null"`
	Item      Item            `gorm:"foreignKey:ItemID"`
	Quantity  float64         `gorm:"not null"`
	CostPrice decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	BatchID   uint            `gorm:"index;not null"`
	CreatedAt time.Time
}
