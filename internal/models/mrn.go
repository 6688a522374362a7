package models

import "time"

type ReturnReason string

const (
	ReturnDefective ReturnReason = "DEFECTIVE"
	ReturnExcess    ReturnReason = "EXCESS"
	ReturnUnused    ReturnReason = "UNUSED"
)

type MRNStatus string

const (
	MRNStatusPending  MRNStatus = "PENDING"
	MRNStatusApproved MRNStatus = "APPROVED"
	MRNStatusRejected MRNStatus = "REJECTED"
)

// MRN: material return note. Stock only re-enters the store on approval.
type MRN struct {
	ID           uint         `gorm:"primaryKey"`
	MRNNumber    string       `gorm:"size:40;not null;uniqueIndex"`
	StoreID      uint         `gorm:"index;not null"`
	ReturnedBy   string       `gorm:"size:100;not null"`
	ProjectRef   string       `gorm:"size:100"`
	Reason       ReturnReason `gorm:"size:20;not null"`
	Status       MRNStatus    `gorm:"size:20;not null;index"`
	CreatedByID  uint         `gorm:"index;not null"`
	DecidedByID  *uint
	DecidedAt    *time.Time
	Remarks      string `gorm:"size:500"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Lines []MRNLine `gorm:"foreignKey:MRNID;constraint:OnDelete:CASCADE"`
}

type MRNLine struct {
	ID        uint    `gorm:"primaryKey"`
	MRNID     uint    `gorm:"index;not null"`
	ItemID    uint    `gorm:"index;not null"`
	Item      Item    `gorm:"foreignKey:ItemID"`
	Quantity  float64 `gorm:"not null"`
	BatchID   *uint
	CreatedAt time.Time
}
