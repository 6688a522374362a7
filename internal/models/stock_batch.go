package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BatchSource string

const (
	BatchSourceGRN      BatchSource = "GRN"
	BatchSourceTransfer BatchSource = "TRANSFER"
	BatchSourceReturn   BatchSource = "RETURN"
)

// StockBatch: one discrete receipt of an item into a store. RemainingQty is
// decremented as the batch is consumed, oldest batch first.
type StockBatch struct {
	ID           uint            `gorm:"primaryKey"`
	BatchNumber  string          `gorm:"size:40;not null;uniqueIndex"`
	StoreID      uint            `gorm:"not null;index:idx_batch_fifo,priority:1"`
	ItemID       uint            `gorm:"not null;index:idx_batch_fifo,priority:2"`
	Item         Item            `gorm:"foreignKey:ItemID"`
	InitialQty   float64         `gorm:"not null"`
	RemainingQty float64         `gorm:"not null"`
	CostPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	SourceType   BatchSource     `gorm:"size:20;not null"`
	SourceRef    string          `gorm:"size:60"`
	GRNID        *uint           `gorm:"index"`
	CreatedAt    time.Time       `gorm:"not null;index:idx_batch_fifo,priority:3"`
}

// StockLevel: denormalised on-hand quantity per (store, item). It must always
// equal the sum of RemainingQty over the pair's batches.
type StockLevel struct {
	ID        uint    `gorm:"primaryKey"`
	StoreID   uint    `gorm:"not null;uniqueIndex:idx_stock_level_pair"`
	ItemID    uint    `gorm:"not null;uniqueIndex:idx_stock_level_pair"`
	Item      Item    `gorm:"foreignKey:ItemID"`
	Quantity  float64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// BatchConsumption: how much a depletion took from a single batch.
type BatchConsumption struct {
	ID        uint            `gorm:"primaryKey"`
	BatchID   uint            `gorm:"index;not null"`
	StoreID   uint            `gorm:"index;not null"`
	ItemID    uint            `gorm:"index;not null"`
	Quantity  float64         `gorm:"not null"`
	CostPrice decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	RefType   string          `gorm:"size:30;not null;index:idx_consumption_ref,priority:1"`
	RefID     uint            `gorm:"not null;index:idx_consumption_ref,priority:2"`
	RefLineID uint            `gorm:"not null;default:0"`
	CreatedAt time.Time
}
