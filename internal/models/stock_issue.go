package models

import "time"

type IssueTargetType string

const (
	IssueToProject    IssueTargetType = "PROJECT"
	IssueToContractor IssueTargetType = "CONTRACTOR"
	IssueToTeam       IssueTargetType = "TEAM"
)

type IssueStatus string

const IssueStatusIssued IssueStatus = "ISSUED"

// StockIssue: material leaving a store to the field.
type StockIssue struct {
	ID           uint            `gorm:"primaryKey"`
	IssueNumber  string          `gorm:"size:40;not null;uniqueIndex"`
	StoreID      uint            `gorm:"index;not null"`
	IssuedToType IssueTargetType `gorm:"size:20;not null"`
	IssuedToRef  string          `gorm:"size:100;not null"`
	IssuedByID   uint            `gorm:"index;not null"`
	Status       IssueStatus     `gorm:"size:20;not null"`
	Remarks      string          `gorm:"size:500"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Lines []StockIssueLine `gorm:"foreignKey:IssueID;constraint:OnDelete:CASCADE"`
}

type StockIssueLine struct {
	ID        uint    `gorm:"primaryKey"`
	IssueID   uint    `gorm:"index;not null"`
	ItemID    uint    `gorm:"index;not null"`
	Item      Item    `gorm:"foreignKey:ItemID"`
	Quantity  float64 `gorm:"not null"`
	CreatedAt time.Time
}
