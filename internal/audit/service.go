package audit

import (
	"encoding/json"
	"fmt"

	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

// Entity types written by the services.
const (
	EntityStockRequest = "stock_request"
	EntityGRN          = "grn"
	EntityWastage      = "wastage"
	EntityStockIssue   = "stock_issue"
	EntityMRN          = "mrn"
	EntityItem         = "item"
	EntityStore        = "store"
	EntityUser         = "user"
)

type LogOptions struct {
	StoreID     *uint
	Actor       models.Actor
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog appends an audit entry. Pass the operation's transaction so the
// entry commits or rolls back with the change it describes.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb needs the JSON literal null, not an empty string
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		StoreID:     opts.StoreID,
		UserID:      opts.Actor.ID,
		UserName:    opts.Actor.Name,
		UserRole:    opts.Actor.Role,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: truncate(opts.Description, 255),
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

type Filter struct {
	StoreID    *uint
	UserID     uint
	EntityType string
	EntityID   uint
	Limit      int
}

func List(db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.Model(&models.AuditLog{})
	if f.StoreID != nil {
		q = q.Where("store_id = ?", *f.StoreID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.AuditLog
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
