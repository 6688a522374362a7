package ledger

import (
	"fmt"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/database"
	"osp-stores-backend/internal/docnum"
	"osp-stores-backend/internal/metrics"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Consumer reference types recorded on BatchConsumption rows.
const (
	RefRequestRelease = "stock_request"
	RefWastage        = "wastage"
	RefIssue          = "stock_issue"
)

type ReceiveInput struct {
	StoreID   uint
	ItemID    uint
	Quantity  float64
	CostPrice decimal.Decimal
	Source    models.BatchSource
	SourceRef string
	GRNID     *uint
}

// Ref identifies the document a depletion is booked against.
type Ref struct {
	Type   string
	ID     uint
	LineID uint
}

// Ledger is the only code that writes stock_batches and stock_levels.
type Ledger struct {
	now func() time.Time
}

func New() *Ledger {
	return &Ledger{now: time.Now}
}

// NewWithClock is used by tests that need deterministic batch ages.
func NewWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Receive books a new batch into (store, item).
func (l *Ledger) Receive(db *gorm.DB, in ReceiveInput) (*models.StockBatch, error) {
	qty := Round(in.Quantity)
	if qty <= 0 {
		return nil, apperr.Validation("receive quantity must be greater than zero")
	}
	if in.CostPrice.IsNegative() {
		return nil, apperr.Validation("cost price cannot be negative")
	}

	now := l.now()
	batch := models.StockBatch{
		BatchNumber:  docnum.New(docnum.PrefixBatch, now),
		StoreID:      in.StoreID,
		ItemID:       in.ItemID,
		InitialQty:   qty,
		RemainingQty: qty,
		CostPrice:    in.CostPrice,
		SourceType:   in.Source,
		SourceRef:    in.SourceRef,
		GRNID:        in.GRNID,
		CreatedAt:    now,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return adjustLevel(tx, in.StoreID, in.ItemID, qty)
	})
	metrics.LedgerMovements.WithLabelValues("receive", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.LedgerQuantity.WithLabelValues("receive").Add(qty)
	return &batch, nil
}

// Deplete draws qty from (store, item) oldest batch first. Nothing is written
// unless the whole quantity can be taken.
func (l *Ledger) Deplete(db *gorm.DB, storeID, itemID uint, qty float64, ref Ref) ([]Allocation, error) {
	var allocs []Allocation
	err := db.Transaction(func(tx *gorm.DB) error {
		var batches []models.StockBatch
		if err := database.ForUpdate(tx).
			Where("store_id = ? AND item_id = ? AND remaining_qty > 0", storeID, itemID).
			Order("created_at ASC, id ASC").
			Find(&batches).Error; err != nil {
			return fmt.Errorf("load batches: %w", err)
		}

		var err error
		allocs, err = Allocate(batches, qty)
		if err != nil {
			if apperr.Is(err, apperr.KindInsufficientStock) {
				return apperr.Wrap(apperr.KindInsufficientStock, err,
					"insufficient stock for item %d in store %d", itemID, storeID)
			}
			return err
		}

		remaining := make(map[uint]float64, len(batches))
		for _, b := range batches {
			remaining[b.ID] = b.RemainingQty
		}

		now := l.now()
		for _, a := range allocs {
			before := remaining[a.BatchID]
			res := tx.Model(&models.StockBatch{}).
				Where("id = ? AND remaining_qty = ?", a.BatchID, before).
				Update("remaining_qty", Round(before-a.Quantity))
			if res.Error != nil {
				return fmt.Errorf("update batch %d: %w", a.BatchID, res.Error)
			}
			if res.RowsAffected != 1 {
				return apperr.Conflict("batch %s changed concurrently, retry", a.BatchNumber)
			}

			consumption := models.BatchConsumption{
				BatchID:   a.BatchID,
				StoreID:   storeID,
				ItemID:    itemID,
				Quantity:  a.Quantity,
				CostPrice: a.CostPrice,
				RefType:   ref.Type,
				RefID:     ref.ID,
				RefLineID: ref.LineID,
				CreatedAt: now,
			}
			if err := tx.Create(&consumption).Error; err != nil {
				return fmt.Errorf("record consumption: %w", err)
			}
		}

		return adjustLevel(tx, storeID, itemID, -Round(qty))
	})
	metrics.LedgerMovements.WithLabelValues("deplete", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	metrics.LedgerQuantity.WithLabelValues("deplete").Add(Round(qty))
	return allocs, nil
}

// adjustLevel moves the denormalised stock level of (store, item) by delta.
func adjustLevel(tx *gorm.DB, storeID, itemID uint, delta float64) error {
	seed := models.StockLevel{StoreID: storeID, ItemID: itemID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed stock level: %w", err)
	}

	var level models.StockLevel
	if err := database.ForUpdate(tx).
		Where("store_id = ? AND item_id = ?", storeID, itemID).
		First(&level).Error; err != nil {
		return fmt.Errorf("load stock level: %w", err)
	}

	next := Round(level.Quantity + delta)
	if next < 0 {
		return apperr.InsufficientStock("stock level of item %d in store %d would go negative", itemID, storeID)
	}

	res := tx.Model(&models.StockLevel{}).
		Where("id = ? AND quantity = ?", level.ID, level.Quantity).
		Updates(map[string]any{"quantity": next, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("update stock level: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.Conflict("stock level of item %d in store %d changed concurrently, retry", itemID, storeID)
	}
	return nil
}
