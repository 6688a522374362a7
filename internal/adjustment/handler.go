package adjustment

import (
	"context"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AllocationResponse struct {
	BatchID     uint    `json:"batch_id"`
	BatchNumber string  `json:"batch_number"`
	Quantity    float64 `json:"quantity"`
	CostPrice   string  `json:"cost_price"`
}

type WastageResponse struct {
	ID          uint                 `json:"id"`
	StoreID     uint                 `json:"store_id"`
	ItemID      uint                 `json:"item_id"`
	Quantity    float64              `json:"quantity"`
	Reason      string               `json:"reason"`
	CreatedAt   string               `json:"created_at"`
	Allocations []AllocationResponse `json:"allocations"`
}

type LineResponse struct {
	ID       uint    `json:"id"`
	ItemID   uint    `json:"item_id"`
	Quantity float64 `json:"quantity"`
	BatchID  *uint   `json:"batch_id,omitempty"`
}

type IssueResponse struct {
	ID           uint                   `json:"id"`
	IssueNumber  string                 `json:"issue_number"`
	StoreID      uint                   `json:"store_id"`
	IssuedToType models.IssueTargetType `json:"issued_to_type"`
	IssuedToRef  string                 `json:"issued_to_ref"`
	Status       models.IssueStatus     `json:"status"`
	Remarks      string                 `json:"remarks"`
	Lines        []LineResponse         `json:"lines"`
}

type MRNResponse struct {
	ID          uint                `json:"id"`
	MRNNumber   string              `json:"mrn_number"`
	StoreID     uint                `json:"store_id"`
	ReturnedBy  string              `json:"returned_by"`
	ProjectRef  string              `json:"project_ref"`
	Reason      models.ReturnReason `json:"reason"`
	Status      models.MRNStatus    `json:"status"`
	DecidedByID *uint               `json:"decided_by_id"`
	Remarks     string              `json:"remarks"`
	Lines       []LineResponse      `json:"lines"`
}

func toMRNResponse(m models.MRN) MRNResponse {
	res := MRNResponse{
		ID:          m.ID,
		MRNNumber:   m.MRNNumber,
		StoreID:     m.StoreID,
		ReturnedBy:  m.ReturnedBy,
		ProjectRef:  m.ProjectRef,
		Reason:      m.Reason,
		Status:      m.Status,
		DecidedByID: m.DecidedByID,
		Remarks:     m.Remarks,
		Lines:       make([]LineResponse, 0, len(m.Lines)),
	}
	for _, l := range m.Lines {
		res.Lines = append(res.Lines, LineResponse{ID: l.ID, ItemID: l.ItemID, Quantity: l.Quantity, BatchID: l.BatchID})
	}
	return res
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return uint(id), nil
}

// POST /api/wastage
func RecordWastageHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body WastageInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		res, err := svc.RecordWastage(c.UserContext(), actor, body)
		if err != nil {
			return err
		}

		out := WastageResponse{
			ID:          res.Record.ID,
			StoreID:     res.Record.StoreID,
			ItemID:      res.Record.ItemID,
			Quantity:    res.Record.Quantity,
			Reason:      res.Record.Reason,
			CreatedAt:   res.Record.CreatedAt.Format("2006-01-02 15:04:05"),
			Allocations: make([]AllocationResponse, 0, len(res.Allocations)),
		}
		for _, a := range res.Allocations {
			out.Allocations = append(out.Allocations, AllocationResponse{
				BatchID:     a.BatchID,
				BatchNumber: a.BatchNumber,
				Quantity:    a.Quantity,
				CostPrice:   a.CostPrice.StringFixed(2),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": out})
	}
}

// POST /api/issues
func CreateIssueHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body IssueInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		issue, err := svc.CreateIssue(c.UserContext(), actor, body)
		if err != nil {
			return err
		}

		out := IssueResponse{
			ID:           issue.ID,
			IssueNumber:  issue.IssueNumber,
			StoreID:      issue.StoreID,
			IssuedToType: issue.IssuedToType,
			IssuedToRef:  issue.IssuedToRef,
			Status:       issue.Status,
			Remarks:      issue.Remarks,
			Lines:        make([]LineResponse, 0, len(issue.Lines)),
		}
		for _, l := range issue.Lines {
			out.Lines = append(out.Lines, LineResponse{ID: l.ID, ItemID: l.ItemID, Quantity: l.Quantity})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": out})
	}
}

// POST /api/mrns
func CreateMRNHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body MRNInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		mrn, err := svc.CreateMRN(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toMRNResponse(*mrn)})
	}
}

// GET /api/mrns?status=PENDING
func ListMRNsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		storeID, err := apperr.QueryID(c, "store_id")
		if err != nil {
			return err
		}
		f := MRNFilter{
			StoreID: storeID,
			Status:  models.MRNStatus(c.Query("status")),
			Limit:   c.QueryInt("limit"),
		}
		if actor.StoreID != nil && actor.Role != models.RoleSuperAdmin {
			f.StoreID = *actor.StoreID
		}
		mrns, err := svc.ListMRNs(c.UserContext(), f)
		if err != nil {
			return err
		}
		res := make([]MRNResponse, 0, len(mrns))
		for _, m := range mrns {
			res = append(res, toMRNResponse(m))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/mrns/:id
func GetMRNHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		mrn, err := svc.GetMRN(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toMRNResponse(*mrn)})
	}
}

type decisionRequest struct {
	Remarks string `json:"remarks"`
}

// POST /api/mrns/:id/approve
func ApproveMRNHandler(svc *Service) fiber.Handler {
	return decideHandler(svc.ApproveMRN)
}

// POST /api/mrns/:id/reject
func RejectMRNHandler(svc *Service) fiber.Handler {
	return decideHandler(svc.RejectMRN)
}

func decideHandler(decide func(ctx context.Context, actor models.Actor, id uint, remarks string) (*models.MRN, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := paramID(c)
		if err != nil {
			return err
		}
		var body decisionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		mrn, err := decide(c.UserContext(), actor, id, body.Remarks)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toMRNResponse(*mrn)})
	}
}
