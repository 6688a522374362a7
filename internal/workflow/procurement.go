package workflow

import (
	"strings"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/models"
)

const (
	ActionCreatePO        Action = "CREATE_PO"
	ActionPOSent          Action = "PO_SENT"
	ActionPOConfirmed     Action = "PO_CONFIRMED"
	ActionMarkReadyForGRN Action = "MARK_READY_FOR_GRN"
)

const procurementRole = models.RoleProcurementOfficer

var procurementActionOrder = []Action{ActionCreatePO, ActionPOSent, ActionPOConfirmed, ActionMarkReadyForGRN}

var procurementSteps = map[Action]struct {
	from models.ProcurementStatus
	to   models.ProcurementStatus
}{
	ActionCreatePO:        {models.ProcurementPending, models.ProcurementPOCreated},
	ActionPOSent:          {models.ProcurementPOCreated, models.ProcurementPOSent},
	ActionPOConfirmed:     {models.ProcurementPOSent, models.ProcurementPOConfirmed},
	ActionMarkReadyForGRN: {models.ProcurementPOConfirmed, models.ProcurementCompleted},
}

func IsProcurementAction(a Action) bool {
	_, ok := procurementSteps[a]
	return ok
}

// PurchaseOrder carries the CREATE_PO details.
type PurchaseOrder struct {
	PONumber         string     `json:"po_number"`
	Vendor           string     `json:"vendor"`
	ExpectedDelivery *time.Time `json:"expected_delivery"`
}

type ProcurementDecision struct {
	Action Action
	From   models.ProcurementStatus
	To     models.ProcurementStatus
	// Stage is set when the step also moves the request's workflow stage.
	Stage *models.WorkflowStage
	PO    *PurchaseOrder
}

func DecideProcurement(req *models.StockRequest, actor models.Actor, action Action, po PurchaseOrder) (*ProcurementDecision, error) {
	if req.WorkflowStage.Terminal() {
		return nil, apperr.Conflict("request %s is %s, no further actions accepted", req.RequestNr, req.WorkflowStage)
	}
	step, ok := procurementSteps[action]
	if !ok {
		return nil, apperr.Validation("unknown procurement action %s", action)
	}
	if req.WorkflowStage != models.StageProcurement {
		return nil, apperr.Conflict("action %s is not valid while request %s is at %s", action, req.RequestNr, req.WorkflowStage)
	}
	if actor.Role != procurementRole {
		return nil, apperr.Authorization("%s requires role %s, actor has %s", action, procurementRole, actor.Role)
	}

	current := models.ProcurementPending
	if req.ProcurementStatus != nil {
		current = *req.ProcurementStatus
	}
	if current != step.from {
		return nil, apperr.Conflict("procurement of %s is %s, %s needs %s", req.RequestNr, current, action, step.from)
	}

	d := &ProcurementDecision{Action: action, From: current, To: step.to}
	switch action {
	case ActionCreatePO:
		po.PONumber = strings.TrimSpace(po.PONumber)
		po.Vendor = strings.TrimSpace(po.Vendor)
		if po.PONumber == "" || po.Vendor == "" {
			return nil, apperr.Validation("po_number and vendor are required")
		}
		d.PO = &po
	case ActionMarkReadyForGRN:
		stage := models.StageGRNPending
		d.Stage = &stage
	}
	return d, nil
}
