package models

import "time"

type ItemType string

const (
	ItemTypeSLT     ItemType = "SLT"     // material owned by SLT
	ItemTypeCompany ItemType = "COMPANY" // company-purchased material
)

type Item struct {
	ID               uint     `gorm:"primaryKey"`
	Code             string   `gorm:"size:50;not null;uniqueIndex"` // immutable once created
	Name             string   `gorm:"size:150;not null"`
	Unit             string   `gorm:"size:20;not null"` // m, nos, kg, roll
	Category         string   `gorm:"size:100;index"`
	Type             ItemType `gorm:"size:20;not null;default:COMPANY"`
	MinLevel         float64  `gorm:"not null;default:0"` // reorder threshold, 0 disables alerting
	IsWastageAllowed bool     `gorm:"not null;default:false"`
	CommonName       string   `gorm:"size:150;index"`
	Tags             string   `gorm:"size:255"` // comma separated
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
