package models

import "time"

type WorkflowStage string

const (
	StageARMApproval           WorkflowStage = "ARM_APPROVAL"
	StageStoresManagerApproval WorkflowStage = "STORES_MANAGER_APPROVAL"
	StageOSPManagerApproval    WorkflowStage = "OSP_MANAGER_APPROVAL"
	StageMainStoreRelease      WorkflowStage = "MAIN_STORE_RELEASE"
	StageSubStoreReceive       WorkflowStage = "SUB_STORE_RECEIVE"
	StageProcurement           WorkflowStage = "PROCUREMENT"
	StageGRNPending            WorkflowStage = "GRN_PENDING"
	StageCompleted             WorkflowStage = "COMPLETED"
	StageRejected              WorkflowStage = "REJECTED"
)

func (s WorkflowStage) Terminal() bool {
	return s == StageCompleted || s == StageRejected
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCompleted RequestStatus = "COMPLETED"
)

type ProcurementStatus string

const (
	ProcurementPending     ProcurementStatus = "PENDING"
	ProcurementPOCreated   ProcurementStatus = "PO_CREATED"
	ProcurementPOSent      ProcurementStatus = "PO_SENT"
	ProcurementPOConfirmed ProcurementStatus = "PO_CONFIRMED"
	ProcurementCompleted   ProcurementStatus = "COMPLETED"
)

type SourceType string

const (
	SourceSLT           SourceType = "SLT"
	SourceMainStore     SourceType = "MAIN_STORE"
	SourceLocalPurchase SourceType = "LOCAL_PURCHASE"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// StockRequest: material request. ToStoreID nil means the request is sourced
// externally and goes through procurement instead of an internal transfer.
type StockRequest struct {
	ID                uint               `gorm:"primaryKey"`
	RequestNr         string             `gorm:"size:40;not null;uniqueIndex"`
	FromStoreID       uint               `gorm:"index;not null"`
	FromStore         Store              `gorm:"foreignKey:FromStoreID"`
	ToStoreID         *uint              `gorm:"index"`
	ToStore           *Store             `gorm:"foreignKey:ToStoreID"`
	RequestedByID     uint               `gorm:"index;not null"`
	RequestedBy       User               `gorm:"foreignKey:RequestedByID"`
	Priority          Priority           `gorm:"size:10;not null;default:MEDIUM"`
	SourceType        SourceType         `gorm:"size:20;not null"`
	WorkflowStage     WorkflowStage      `gorm:"size:30;not null;index"`
	Status            RequestStatus      `gorm:"size:20;not null;index"`
	ProcurementStatus *ProcurementStatus `gorm:"size:20"`
	RequiredDate      *time.Time
	Purpose           string `gorm:"size:500"`
	IRNumber          string `gorm:"size:50"`
	PONumber          string `gorm:"size:50"`
	Vendor            string `gorm:"size:150"`
	ExpectedDelivery  *time.Time
	Version           int `gorm:"not null;default:1"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Lines   []RequestLine      `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
	History []RequestActionLog `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE"`
}

func (r *StockRequest) IsExternal() bool {
	return r.ToStoreID == nil
}

// RequestLine: one item of a request. Quantities of later stages stay nil
// until that stage has been passed.
type RequestLine struct {
	ID              uint    `gorm:"primaryKey"`
	RequestID       uint    `gorm:"index;not null"`
	ItemID          uint    `gorm:"index;not null"`
	Item            Item    `gorm:"foreignKey:ItemID"`
	Position        int     `gorm:"not null"`
	RequestedQty    float64 `gorm:"not null"`
	ApprovedQty     *float64
	IssuedQty       *float64
	ReceivedQty     *float64
	Make            string `gorm:"size:100"`
	Model           string `gorm:"size:100"`
	SuggestedVendor string `gorm:"size:150"`
	Remarks         string `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RequestActionLog: one applied transition of a request.
type RequestActionLog struct {
	ID        uint          `gorm:"primaryKey"`
	RequestID uint          `gorm:"index;not null"`
	ActorID   uint          `gorm:"index;not null"`
	ActorRole UserRole      `gorm:"size:30;not null"`
	Action    string        `gorm:"size:40;not null"`
	FromStage WorkflowStage `gorm:"size:30;not null"`
	ToStage   WorkflowStage `gorm:"size:30;not null"`
	Remarks   string        `gorm:"size:500"`
	CreatedAt time.Time
}
