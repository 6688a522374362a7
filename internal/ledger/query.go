package ledger

import (
	"math"

	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

// OnHand is the sum of remaining quantity over every batch of (store, item).
func OnHand(db *gorm.DB, storeID, itemID uint) (float64, error) {
	var total float64
	err := db.Model(&models.StockBatch{}).
		Where("store_id = ? AND item_id = ?", storeID, itemID).
		Select("COALESCE(SUM(remaining_qty), 0)").
		Scan(&total).Error
	return Round(total), err
}

// Level reads the denormalised stock level, zero when the pair was never stocked.
func Level(db *gorm.DB, storeID, itemID uint) (float64, error) {
	var levels []models.StockLevel
	if err := db.Where("store_id = ? AND item_id = ?", storeID, itemID).Limit(1).Find(&levels).Error; err != nil {
		return 0, err
	}
	if len(levels) == 0 {
		return 0, nil
	}
	return levels[0].Quantity, nil
}

type Reconciliation struct {
	StoreID    uint    `json:"store_id"`
	ItemID     uint    `json:"item_id"`
	BatchTotal float64 `json:"batch_total"`
	LevelQty   float64 `json:"level_quantity"`
	InBalance  bool    `json:"in_balance"`
}

// Reconcile compares the batch sum with the stock level of (store, item).
func Reconcile(db *gorm.DB, storeID, itemID uint) (Reconciliation, error) {
	onHand, err := OnHand(db, storeID, itemID)
	if err != nil {
		return Reconciliation{}, err
	}
	level, err := Level(db, storeID, itemID)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		StoreID:    storeID,
		ItemID:     itemID,
		BatchTotal: onHand,
		LevelQty:   level,
		InBalance:  math.Abs(onHand-level) < 1.0/qtyScale,
	}, nil
}

// Batches lists the batches of (store, item) in FIFO order.
func Batches(db *gorm.DB, storeID, itemID uint, includeEmpty bool) ([]models.StockBatch, error) {
	q := db.Where("store_id = ? AND item_id = ?", storeID, itemID)
	if !includeEmpty {
		q = q.Where("remaining_qty > 0")
	}
	var batches []models.StockBatch
	err := q.Order("created_at ASC, id ASC").Find(&batches).Error
	return batches, err
}

// StoreStock lists every stocked item of a store with its level.
func StoreStock(db *gorm.DB, storeID uint) ([]models.StockLevel, error) {
	var levels []models.StockLevel
	err := db.Preload("Item").
		Where("store_id = ?", storeID).
		Order("item_id ASC").
		Find(&levels).Error
	return levels, err
}

// Consumptions lists the batch draws booked against a document.
func Consumptions(db *gorm.DB, refType string, refID uint) ([]models.BatchConsumption, error) {
	var rows []models.BatchConsumption
	err := db.Where("ref_type = ? AND ref_id = ?", refType, refID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
