package workflow

import (
	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type LineResponse struct {
	ID              uint     `json:"id"`
	Position        int      `json:"position"`
	ItemID          uint     `json:"item_id"`
	ItemCode        string   `json:"item_code,omitempty"`
	ItemName        string   `json:"item_name,omitempty"`
	Unit            string   `json:"unit,omitempty"`
	RequestedQty    float64  `json:"requested_qty"`
	ApprovedQty     *float64 `json:"approved_qty"`
	IssuedQty       *float64 `json:"issued_qty"`
	ReceivedQty     *float64 `json:"received_qty"`
	Make            string   `json:"make"`
	Model           string   `json:"model"`
	SuggestedVendor string   `json:"suggested_vendor"`
	Remarks         string   `json:"remarks"`
}

type HistoryResponse struct {
	ID        uint                 `json:"id"`
	Action    string               `json:"action"`
	ActorID   uint                 `json:"actor_id"`
	ActorRole models.UserRole      `json:"actor_role"`
	FromStage models.WorkflowStage `json:"from_stage"`
	ToStage   models.WorkflowStage `json:"to_stage"`
	Remarks   string               `json:"remarks"`
	CreatedAt string               `json:"created_at"`
}

type RequestResponse struct {
	ID                uint                      `json:"id"`
	RequestNr         string                    `json:"request_nr"`
	FromStoreID       uint                      `json:"from_store_id"`
	FromStoreName     string                    `json:"from_store_name"`
	ToStoreID         *uint                     `json:"to_store_id"`
	ToStoreName       string                    `json:"to_store_name,omitempty"`
	RequestedByID     uint                      `json:"requested_by_id"`
	Priority          models.Priority           `json:"priority"`
	SourceType        models.SourceType         `json:"source_type"`
	WorkflowStage     models.WorkflowStage      `json:"workflow_stage"`
	Status            models.RequestStatus      `json:"status"`
	ProcurementStatus *models.ProcurementStatus `json:"procurement_status"`
	RequiredDate      *string                   `json:"required_date"`
	Purpose           string                    `json:"purpose"`
	IRNumber          string                    `json:"ir_number"`
	PONumber          string                    `json:"po_number"`
	Vendor            string                    `json:"vendor"`
	ExpectedDelivery  *string                   `json:"expected_delivery"`
	Version           int                       `json:"version"`
	CreatedAt         string                    `json:"created_at"`
	Lines             []LineResponse            `json:"lines"`
	History           []HistoryResponse         `json:"history,omitempty"`
	AvailableActions  []Action                  `json:"available_actions"`
}

func toRequestResponse(r models.StockRequest, actor models.Actor) RequestResponse {
	res := RequestResponse{
		ID:                r.ID,
		RequestNr:         r.RequestNr,
		FromStoreID:       r.FromStoreID,
		FromStoreName:     r.FromStore.Name,
		ToStoreID:         r.ToStoreID,
		RequestedByID:     r.RequestedByID,
		Priority:          r.Priority,
		SourceType:        r.SourceType,
		WorkflowStage:     r.WorkflowStage,
		Status:            r.Status,
		ProcurementStatus: r.ProcurementStatus,
		Purpose:           r.Purpose,
		IRNumber:          r.IRNumber,
		PONumber:          r.PONumber,
		Vendor:            r.Vendor,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.Format("2006-01-02 15:04:05"),
		Lines:             make([]LineResponse, 0, len(r.Lines)),
		AvailableActions:  AvailableActions(&r, actor.Role),
	}
	if r.ToStore != nil {
		res.ToStoreName = r.ToStore.Name
	}
	if r.RequiredDate != nil {
		d := r.RequiredDate.Format("2006-01-02")
		res.RequiredDate = &d
	}
	if r.ExpectedDelivery != nil {
		d := r.ExpectedDelivery.Format("2006-01-02")
		res.ExpectedDelivery = &d
	}
	if res.AvailableActions == nil {
		res.AvailableActions = []Action{}
	}
	for _, l := range r.Lines {
		res.Lines = append(res.Lines, LineResponse{
			ID:              l.ID,
			Position:        l.Position,
			ItemID:          l.ItemID,
			ItemCode:        l.Item.Code,
			ItemName:        l.Item.Name,
			Unit:            l.Item.Unit,
			RequestedQty:    l.RequestedQty,
			ApprovedQty:     l.ApprovedQty,
			IssuedQty:       l.IssuedQty,
			ReceivedQty:     l.ReceivedQty,
			Make:            l.Make,
			Model:           l.Model,
			SuggestedVendor: l.SuggestedVendor,
			Remarks:         l.Remarks,
		})
	}
	for _, h := range r.History {
		res.History = append(res.History, HistoryResponse{
			ID:        h.ID,
			Action:    h.Action,
			ActorID:   h.ActorID,
			ActorRole: h.ActorRole,
			FromStage: h.FromStage,
			ToStage:   h.ToStage,
			Remarks:   h.Remarks,
			CreatedAt: h.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res
}

func toList(reqs []models.StockRequest, actor models.Actor) []RequestResponse {
	out := make([]RequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toRequestResponse(r, actor))
	}
	return out
}

func requestID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid request id")
	}
	return uint(id), nil
}

// POST /api/requests
func CreateRequestHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body CreateRequestInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		req, err := svc.CreateRequest(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toRequestResponse(*req, actor)})
	}
}

// GET /api/requests?stage=ARM_APPROVAL&status=PENDING&store_id=2&mine=true
func ListRequestsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		storeID, err := apperr.QueryID(c, "store_id")
		if err != nil {
			return err
		}
		f := ListFilter{
			Stage:   models.WorkflowStage(c.Query("stage")),
			Status:  models.RequestStatus(c.Query("status")),
			StoreID: storeID,
			Limit:   c.QueryInt("limit"),
			Offset:  c.QueryInt("offset"),
		}
		if c.QueryBool("mine") || actor.Role == models.RoleRequester {
			f.RequestedByID = actor.ID
		}
		reqs, err := svc.List(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toList(reqs, actor)})
	}
}

// GET /api/requests/queue
func QueueHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		reqs, err := svc.Queue(c.UserContext(), actor, c.QueryInt("limit"), c.QueryInt("offset"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toList(reqs, actor)})
	}
}

// GET /api/requests/:id
func GetRequestHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := requestID(c)
		if err != nil {
			return err
		}
		req, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toRequestResponse(*req, actor)})
	}
}

// POST /api/requests/:id/actions
// {"action": "STORES_MANAGER_APPROVE", "allocation": [{"line_id": 4, "quantity": 25}], "expected_version": 2}
func ProcessActionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := requestID(c)
		if err != nil {
			return err
		}
		var body ActionInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Action == "" {
			return apperr.Validation("action is required")
		}
		req, err := svc.ProcessAction(c.UserContext(), actor, id, body)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toRequestResponse(*req, actor)})
	}
}
