// Package adjustment moves stock outside the request workflow: wastage
// write-offs, issues to the field and material returns.
package adjustment

import (
	"context"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

type Catalog interface {
	GetItem(ctx context.Context, id uint) (*models.Item, error)
	GetStore(ctx context.Context, id uint) (*models.Store, error)
}

type Service struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog Catalog
	now     func() time.Time
}

func NewService(db *gorm.DB, l *ledger.Ledger, catalog Catalog) *Service {
	return &Service{db: db, ledger: l, catalog: catalog, now: time.Now}
}

type LineInput struct {
	ItemID   uint    `json:"item_id"`
	Quantity float64 `json:"quantity"`
}

func requireRole(actor models.Actor, what string, roles ...models.UserRole) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return apperr.Authorization("role %s cannot %s", actor.Role, what)
}

// requireOwnStore refuses actors bound to a different store.
func requireOwnStore(actor models.Actor, storeID uint) error {
	if actor.StoreID != nil && *actor.StoreID != storeID {
		return apperr.Authorization("store %d is not your store", storeID)
	}
	return nil
}

// validateLines checks stock lines and rejects repeated items.
func (s *Service) validateLines(ctx context.Context, lines []LineInput) error {
	if len(lines) == 0 {
		return apperr.Validation("at least one item is required")
	}
	seen := make(map[uint]bool, len(lines))
	for i, l := range lines {
		if ledger.Round(l.Quantity) <= 0 {
			return apperr.Validation("item %d: quantity must be greater than zero", i+1)
		}
		if seen[l.ItemID] {
			return apperr.Validation("item %d is listed more than once", l.ItemID)
		}
		seen[l.ItemID] = true
		if _, err := s.catalog.GetItem(ctx, l.ItemID); err != nil {
			return err
		}
	}
	return nil
}
