package workflow

import (
	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/models"
)

type Action string

const (
	ActionARMApprove           Action = "ARM_APPROVE"
	ActionARMReject            Action = "ARM_REJECT"
	ActionStoresManagerApprove Action = "STORES_MANAGER_APPROVE"
	ActionStoresManagerReject  Action = "STORES_MANAGER_REJECT"
	ActionOSPManagerApprove    Action = "OSP_MANAGER_APPROVE"
	ActionOSPManagerReject     Action = "OSP_MANAGER_REJECT"
	ActionMainStoreRelease     Action = "MAIN_STORE_RELEASE"
	ActionSubStoreReceive      Action = "SUB_STORE_RECEIVE"
)

// QtyField names the line quantity a transition writes.
type QtyField int

const (
	QtyNone QtyField = iota
	QtyApproved
	QtyIssued
	QtyReceived
)

func (f QtyField) Column() string {
	switch f {
	case QtyApproved:
		return "approved_qty"
	case QtyIssued:
		return "issued_qty"
	case QtyReceived:
		return "received_qty"
	}
	return ""
}

// Effect is the ledger side effect of a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectRelease
	EffectReceive
)

type rule struct {
	role   models.UserRole
	reject bool
	qty    QtyField
	effect Effect
	next   func(*models.StockRequest) (models.WorkflowStage, models.RequestStatus)
}

func advance(stage models.WorkflowStage, status models.RequestStatus) func(*models.StockRequest) (models.WorkflowStage, models.RequestStatus) {
	return func(*models.StockRequest) (models.WorkflowStage, models.RequestStatus) {
		return stage, status
	}
}

func afterOSPApproval(r *models.StockRequest) (models.WorkflowStage, models.RequestStatus) {
	if r.IsExternal() {
		return models.StageProcurement, models.RequestStatusApproved
	}
	return models.StageMainStoreRelease, models.RequestStatusApproved
}

func rejected(*models.StockRequest) (models.WorkflowStage, models.RequestStatus) {
	return models.StageRejected, models.RequestStatusRejected
}

var stageRules = map[models.WorkflowStage]map[Action]rule{
	models.StageARMApproval: {
		ActionARMApprove: {role: models.RoleAreaManager, qty: QtyApproved,
			next: advance(models.StageStoresManagerApproval, models.RequestStatusPending)},
		ActionARMReject: {role: models.RoleAreaManager, reject: true, next: rejected},
	},
	models.StageStoresManagerApproval: {
		ActionStoresManagerApprove: {role: models.RoleStoresManager, qty: QtyApproved,
			next: advance(models.StageOSPManagerApproval, models.RequestStatusPending)},
		ActionStoresManagerReject: {role: models.RoleStoresManager, reject: true, next: rejected},
	},
	models.StageOSPManagerApproval: {
		ActionOSPManagerApprove: {role: models.RoleOSPManager, qty: QtyApproved, next: afterOSPApproval},
		ActionOSPManagerReject:  {role: models.RoleOSPManager, reject: true, next: rejected},
	},
	models.StageMainStoreRelease: {
		ActionMainStoreRelease: {role: models.RoleStoresAssistant, qty: QtyIssued, effect: EffectRelease,
			next: advance(models.StageSubStoreReceive, models.RequestStatusApproved)},
	},
	models.StageSubStoreReceive: {
		ActionSubStoreReceive: {role: models.RoleSubStoreOfficer, qty: QtyReceived, effect: EffectReceive,
			next: advance(models.StageCompleted, models.RequestStatusCompleted)},
	},
}

// LineQuantity is one line of an approval, release or receive submission.
// A nil Quantity carries the previous stage's quantity forward.
type LineQuantity struct {
	LineID   uint     `json:"line_id"`
	Quantity *float64 `json:"quantity"`
}

type Policy struct {
	// Reject approvals above the requested quantity.
	EnforceApprovalCeiling bool
}

// Decision is the outcome of a valid transition, before anything is written.
type Decision struct {
	Action     Action
	From       models.WorkflowStage
	To         models.WorkflowStage
	Status     models.RequestStatus
	Field      QtyField
	Quantities map[uint]float64
	Effect     Effect
}

// Decide checks action against the request's current stage and the actor's
// role, and resolves the line quantities it will write.
func Decide(req *models.StockRequest, actor models.Actor, action Action, alloc []LineQuantity, policy Policy) (*Decision, error) {
	if req.WorkflowStage.Terminal() {
		return nil, apperr.Conflict("request %s is %s, no further actions accepted", req.RequestNr, req.WorkflowStage)
	}

	r, ok := stageRules[req.WorkflowStage][action]
	if !ok {
		return nil, apperr.Conflict("action %s is not valid while request %s is at %s", action, req.RequestNr, req.WorkflowStage)
	}
	if actor.Role != r.role {
		return nil, apperr.Authorization("%s requires role %s, actor has %s", action, r.role, actor.Role)
	}
	if r.effect == EffectReceive && actor.StoreID != nil && (req.ToStoreID == nil || *actor.StoreID != *req.ToStoreID) {
		return nil, apperr.Authorization("only officers of the receiving store may receive request %s", req.RequestNr)
	}

	to, status := r.next(req)
	d := &Decision{
		Action: action,
		From:   req.WorkflowStage,
		To:     to,
		Status: status,
		Field:  r.qty,
		Effect: r.effect,
	}
	if r.reject {
		return d, nil
	}

	qtys, err := resolveQuantities(req.Lines, alloc, r.qty)
	if err != nil {
		return nil, err
	}
	if r.qty == QtyApproved && policy.EnforceApprovalCeiling {
		for _, l := range req.Lines {
			if qtys[l.ID] > l.RequestedQty {
				return nil, apperr.Validation("line %d: approved %.3f exceeds requested %.3f", l.Position, qtys[l.ID], l.RequestedQty)
			}
		}
	}
	d.Quantities = qtys
	return d, nil
}

// carried is the quantity a line takes when its submission leaves it out.
func carried(l models.RequestLine, field QtyField) float64 {
	pick := func(vals ...*float64) float64 {
		for _, v := range vals {
			if v != nil {
				return *v
			}
		}
		return l.RequestedQty
	}
	switch field {
	case QtyApproved:
		return pick(l.ApprovedQty)
	case QtyIssued:
		return pick(l.IssuedQty, l.ApprovedQty)
	case QtyReceived:
		return pick(l.ReceivedQty, l.IssuedQty, l.ApprovedQty)
	}
	return l.RequestedQty
}

// resolveQuantities applies the carry-forward policy. An empty submission
// carries every line; a non-empty one must name every line exactly once.
func resolveQuantities(lines []models.RequestLine, alloc []LineQuantity, field QtyField) (map[uint]float64, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("request has no lines")
	}

	out := make(map[uint]float64, len(lines))
	if len(alloc) == 0 {
		for _, l := range lines {
			out[l.ID] = ledger.Round(carried(l, field))
		}
		return out, nil
	}

	byID := make(map[uint]models.RequestLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}

	for _, a := range alloc {
		l, ok := byID[a.LineID]
		if !ok {
			return nil, apperr.Validation("line %d does not belong to this request", a.LineID)
		}
		if _, dup := out[a.LineID]; dup {
			return nil, apperr.Validation("line %d submitted twice", a.LineID)
		}
		q := carried(l, field)
		if a.Quantity != nil {
			q = *a.Quantity
		}
		if q < 0 {
			return nil, apperr.Validation("line %d: quantity cannot be negative", l.Position)
		}
		out[a.LineID] = ledger.Round(q)
	}

	if len(out) != len(lines) {
		for _, l := range lines {
			if _, ok := out[l.ID]; !ok {
				return nil, apperr.Validation("line %d (item %d) is missing from the submission", l.Position, l.ItemID)
			}
		}
	}
	return out, nil
}

// ActionsFor lists the workflow actions a role can take at a stage.
func ActionsFor(stage models.WorkflowStage, role models.UserRole) []Action {
	var out []Action
	for _, a := range actionOrder {
		if r, ok := stageRules[stage][a]; ok && r.role == role {
			out = append(out, a)
		}
	}
	if stage == models.StageProcurement && role == procurementRole {
		out = append(out, procurementActionOrder...)
	}
	return out
}

// AvailableActions lists what role can do to req right now. At PROCUREMENT
// only the step matching the current procurement status is offered.
func AvailableActions(req *models.StockRequest, role models.UserRole) []Action {
	if req.WorkflowStage != models.StageProcurement {
		return ActionsFor(req.WorkflowStage, role)
	}
	if role != procurementRole {
		return nil
	}
	current := models.ProcurementPending
	if req.ProcurementStatus != nil {
		current = *req.ProcurementStatus
	}
	var out []Action
	for _, a := range procurementActionOrder {
		if procurementSteps[a].from == current {
			out = append(out, a)
		}
	}
	return out
}

// StagesFor lists the stages at which role has something to do.
func StagesFor(role models.UserRole) []models.WorkflowStage {
	var out []models.WorkflowStage
	for _, s := range stageOrder {
		if len(ActionsFor(s, role)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

var actionOrder = []Action{
	ActionARMApprove, ActionARMReject,
	ActionStoresManagerApprove, ActionStoresManagerReject,
	ActionOSPManagerApprove, ActionOSPManagerReject,
	ActionMainStoreRelease, ActionSubStoreReceive,
}

var stageOrder = []models.WorkflowStage{
	models.StageARMApproval,
	models.StageStoresManagerApproval,
	models.StageOSPManagerApproval,
	models.StageMainStoreRelease,
	models.StageSubStoreReceive,
	models.StageProcurement,
}
