package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	cache ItemCache
}

func NewService(db *gorm.DB, cache ItemCache) *Service {
	if cache == nil {
		cache = NewNoopItemCache()
	}
	return &Service{db: db, cache: cache}
}

// GetItem reads through the cache. Cache failures fall back to the database.
func (s *Service) GetItem(ctx context.Context, id uint) (*models.Item, error) {
	if item, ok, err := s.cache.GetItem(ctx, id); err != nil {
		logger.Logger.Warn().Err(err).Uint("item_id", id).Msg("item cache read failed")
	} else if ok {
		return item, nil
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, apperr.FromLookup(err, "item", id)
	}
	if err := s.cache.SetItem(ctx, &item); err != nil {
		logger.Logger.Warn().Err(err).Uint("item_id", id).Msg("item cache write failed")
	}
	return &item, nil
}

func (s *Service) GetStore(ctx context.Context, id uint) (*models.Store, error) {
	var store models.Store
	if err := s.db.WithContext(ctx).First(&store, id).Error; err != nil {
		return nil, apperr.FromLookup(err, "store", id)
	}
	return &store, nil
}

type ItemFilter struct {
	Search   string // code, name or common name
	Category string
	Type     models.ItemType
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter) ([]models.Item, error) {
	q := s.db.WithContext(ctx).Model(&models.Item{})
	if f.Search != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(f.Search)) + "%"
		q = q.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ? OR LOWER(common_name) LIKE ?", like, like, like)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}

	var items []models.Item
	if err := q.Order("code ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

type ItemInput struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Category         string          `json:"category"`
	Type             models.ItemType `json:"type"`
	MinLevel         float64         `json:"min_level"`
	IsWastageAllowed bool            `json:"is_wastage_allowed"`
	CommonName       string          `json:"common_name"`
	Tags             string          `json:"tags"`
}

func (in *ItemInput) normalize() error {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Category = strings.TrimSpace(in.Category)
	in.CommonName = strings.TrimSpace(in.CommonName)
	in.Tags = strings.TrimSpace(in.Tags)
	if in.Type == "" {
		in.Type = models.ItemTypeCompany
	}

	if in.Code == "" || in.Name == "" || in.Unit == "" {
		return apperr.Validation("code, name and unit are required")
	}
	if in.Type != models.ItemTypeSLT && in.Type != models.ItemTypeCompany {
		return apperr.Validation("item type must be %s or %s", models.ItemTypeSLT, models.ItemTypeCompany)
	}
	if in.MinLevel < 0 {
		return apperr.Validation("min_level cannot be negative")
	}
	return nil
}

func (s *Service) CreateItem(ctx context.Context, actor models.Actor, in ItemInput) (*models.Item, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	item := models.Item{
		Code:             in.Code,
		Name:             in.Name,
		Unit:             in.Unit,
		Category:         in.Category,
		Type:             in.Type,
		MinLevel:         in.MinLevel,
		IsWastageAllowed: in.IsWastageAllowed,
		CommonName:       in.CommonName,
		Tags:             in.Tags,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Item{}).Where("code = ?", item.Code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("item code %s already exists", item.Code)
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityItem,
			EntityID:    item.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Item created: %s %s", item.Code, item.Name),
			After:       item,
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemPatch updates an item. The code is immutable.
type ItemPatch struct {
	Code             *string          `json:"code"`
	Name             *string          `json:"name"`
	Unit             *string          `json:"unit"`
	Category         *string          `json:"category"`
	Type             *models.ItemType `json:"type"`
	MinLevel         *float64         `json:"min_level"`
	IsWastageAllowed *bool            `json:"is_wastage_allowed"`
	CommonName       *string          `json:"common_name"`
	Tags             *string          `json:"tags"`
}

func (s *Service) UpdateItem(ctx context.Context, actor models.Actor, id uint, p ItemPatch) (*models.Item, error) {
	var item models.Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return apperr.FromLookup(err, "item", id)
		}
		before := item

		if p.Code != nil && !strings.EqualFold(strings.TrimSpace(*p.Code), item.Code) {
			return apperr.Validation("item code cannot be changed")
		}
		in := ItemInput{
			Code:             item.Code,
			Name:             pick(p.Name, item.Name),
			Unit:             pick(p.Unit, item.Unit),
			Category:         pick(p.Category, item.Category),
			Type:             pick(p.Type, item.Type),
			MinLevel:         pick(p.MinLevel, item.MinLevel),
			IsWastageAllowed: pick(p.IsWastageAllowed, item.IsWastageAllowed),
			CommonName:       pick(p.CommonName, item.CommonName),
			Tags:             pick(p.Tags, item.Tags),
		}
		if err := in.normalize(); err != nil {
			return err
		}

		item.Name, item.Unit, item.Category, item.Type = in.Name, in.Unit, in.Category, in.Type
		item.MinLevel, item.IsWastageAllowed = in.MinLevel, in.IsWastageAllowed
		item.CommonName, item.Tags = in.CommonName, in.Tags
		if err := tx.Save(&item).Error; err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityItem,
			EntityID:    item.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Item updated: %s", item.Code),
			Before:      before,
			After:       item,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return &item, nil
}

// DeleteItem removes an item that no stock or document refers to.
func (s *Service) DeleteItem(ctx context.Context, actor models.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Item
		if err := tx.First(&item, id).Error; err != nil {
			return apperr.FromLookup(err, "item", id)
		}

		for _, ref := range []struct {
			model any
			what  string
		}{
			{&models.StockBatch{}, "stock batches"},
			{&models.RequestLine{}, "stock requests"},
			{&models.GRNLine{}, "GRNs"},
			{&models.StockIssueLine{}, "stock issues"},
			{&models.MRNLine{}, "MRNs"},
			{&models.WastageRecord{}, "wastage records"},
		} {
			var n int64
			if err := tx.Model(ref.model).Where("item_id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return apperr.Conflict("item %s is referenced by %s and cannot be deleted", item.Code, ref.what)
			}
		}

		if err := tx.Where("item_id = ?", id).Delete(&models.StockLevel{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityItem,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Item deleted: %s", item.Code),
			Before:      item,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uint) {
	if err := s.cache.InvalidateItem(ctx, id); err != nil {
		logger.Logger.Warn().Err(err).Uint("item_id", id).Msg("item cache invalidation failed")
	}
}

func (s *Service) ListStores(ctx context.Context, typ models.StoreType) ([]models.Store, error) {
	q := s.db.WithContext(ctx).Model(&models.Store{})
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var stores []models.Store
	if err := q.Order("name ASC").Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return stores, nil
}

type StoreInput struct {
	Name     string           `json:"name"`
	Type     models.StoreType `json:"type"`
	Location string           `json:"location"`
}

func (s *Service) CreateStore(ctx context.Context, actor models.Actor, in StoreInput) (*models.Store, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	if in.Name == "" {
		return nil, apperr.Validation("store name is required")
	}
	if in.Type != models.StoreTypeMain && in.Type != models.StoreTypeSub {
		return nil, apperr.Validation("store type must be %s or %s", models.StoreTypeMain, models.StoreTypeSub)
	}

	store := models.Store{Name: in.Name, Type: in.Type, Location: in.Location}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Store
		err := tx.Where("name = ?", in.Name).First(&existing).Error
		if err == nil {
			return apperr.Conflict("store %q already exists", in.Name)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(&store).Error; err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &store.ID,
			Actor:       actor,
			EntityType:  audit.EntityStore,
			EntityID:    store.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Store created: %s (%s)", store.Name, store.Type),
			After:       store,
		})
	})
	if err != nil {
		return nil, err
	}
	return &store, nil
}

type LowStockRow struct {
	StoreID   uint    `json:"store_id"`
	StoreName string  `json:"store_name"`
	ItemID    uint    `json:"item_id"`
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
	MinLevel  float64 `json:"min_level"`
}

// LowStock lists stocked pairs below their item's reorder level. storeID 0
// covers every store.
func (s *Service) LowStock(ctx context.Context, storeID uint) ([]LowStockRow, error) {
	q := s.db.WithContext(ctx).
		Table("stock_levels AS sl").
		Select("sl.store_id, st.name AS store_name, sl.item_id, i.code AS item_code, i.name AS item_name, i.unit, sl.quantity, i.min_level").
		Joins("JOIN items i ON i.id = sl.item_id").
		Joins("JOIN stores st ON st.id = sl.store_id").
		Where("i.min_level > 0 AND sl.quantity < i.min_level")
	if storeID != 0 {
		q = q.Where("sl.store_id = ?", storeID)
	}

	rows := []LowStockRow{}
	if err := q.Order("st.name ASC, i.code ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	return rows, nil
}

func pick[T any](p *T, fallback T) T {
	if p != nil {
		return *p
	}
	return fallback
}

// StoreStock lists the stock levels of one store.
func (s *Service) StoreStock(ctx context.Context, storeID uint) ([]models.StockLevel, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	return ledger.StoreStock(s.db.WithContext(ctx), storeID)
}

// Batches lists the FIFO batches of (store, item), oldest first.
func (s *Service) Batches(ctx context.Context, storeID, itemID uint, includeEmpty bool) ([]models.StockBatch, ledger.Reconciliation, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, ledger.Reconciliation{}, err
	}
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, ledger.Reconciliation{}, err
	}
	db := s.db.WithContext(ctx)
	batches, err := ledger.Batches(db, storeID, itemID, includeEmpty)
	if err != nil {
		return nil, ledger.Reconciliation{}, fmt.Errorf("list batches: %w", err)
	}
	rec, err := ledger.Reconcile(db, storeID, itemID)
	if err != nil {
		return nil, ledger.Reconciliation{}, fmt.Errorf("reconcile: %w", err)
	}
	return batches, rec, nil
}
