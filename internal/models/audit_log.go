package models

import "time"

type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionUpdate     AuditAction = "update"
	AuditActionDelete     AuditAction = "delete"
	AuditActionTransition AuditAction = "transition"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Store the change belongs to, if any
	StoreID *uint `gorm:"index" json:"store_id"`

	UserID   uint     `gorm:"index" json:"user_id"`
	UserName string   `gorm:"size:100" json:"user_name"` // denormalised
	UserRole UserRole `gorm:"size:30" json:"user_role"`

	// e.g. "stock_request", "grn", "wastage", "mrn", "item"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	BeforeData string `gorm:"type:jsonb" json:"before_data"`
	AfterData  string `gorm:"type:jsonb" json:"after_data"`
}
