package adjustment

import (
	"context"
	"fmt"
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

type WastageInput struct {
	StoreID  uint    `json:"store_id"`
	ItemID   uint    `json:"item_id"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
}

type WastageResult struct {
	Record      models.WastageRecord
	Allocations []ledger.Allocation
}

// RecordWastage writes stock off FIFO. Items that do not allow wastage are
// refused before the ledger is touched.
func (s *Service) RecordWastage(ctx context.Context, actor models.Actor, in WastageInput) (*WastageResult, error) {
	if err := requireRole(actor, "record wastage",
		models.RoleStoresManager, models.RoleStoresAssistant, models.RoleSubStoreOfficer); err != nil {
		return nil, err
	}
	if err := requireOwnStore(actor, in.StoreID); err != nil {
		return nil, err
	}

	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return nil, apperr.Validation("a wastage reason is required")
	}
	if ledger.Round(in.Quantity) <= 0 {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	if _, err := s.catalog.GetStore(ctx, in.StoreID); err != nil {
		return nil, err
	}
	item, err := s.catalog.GetItem(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.IsWastageAllowed {
		return nil, apperr.Validation("wastage is not allowed for item %s", item.Code)
	}

	res := &WastageResult{Record: models.WastageRecord{
		StoreID:      in.StoreID,
		ItemID:       in.ItemID,
		Quantity:     ledger.Round(in.Quantity),
		Reason:       in.Reason,
		RecordedByID: actor.ID,
		CreatedAt:    s.now(),
	}}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&res.Record).Error; err != nil {
			return fmt.Errorf("create wastage record: %w", err)
		}
		allocs, err := s.ledger.Deplete(tx, in.StoreID, in.ItemID, res.Record.Quantity, ledger.Ref{
			Type: ledger.RefWastage,
			ID:   res.Record.ID,
		})
		if err != nil {
			return err
		}
		res.Allocations = allocs

		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &in.StoreID,
			Actor:       actor,
			EntityType:  audit.EntityWastage,
			EntityID:    res.Record.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Wastage: %.3f %s of %s (%s)", res.Record.Quantity, item.Unit, item.Code, in.Reason),
			After:       res,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Uint("store_id", in.StoreID).
		Str("item", item.Code).
		Float64("quantity", res.Record.Quantity).
		Int("batches", len(res.Allocations)).
		Msg("wastage recorded")
	return res, nil
}
