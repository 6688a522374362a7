package grn

import (
	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type LineResponse struct {
	ID        uint    `json:"id"`
	ItemID    uint    `json:"item_id"`
	ItemCode  string  `json:"item_code"`
	ItemName  string  `json:"item_name"`
	Quantity  float64 `json:"quantity"`
	CostPrice string  `json:"cost_price"`
	BatchID   uint    `json:"batch_id"`
}

type Response struct {
	ID             uint              `json:"id"`
	GRNNumber      string            `json:"grn_number"`
	StoreID        uint              `json:"store_id"`
	StoreName      string            `json:"store_name"`
	SourceType     models.SourceType `json:"source_type"`
	Supplier       string            `json:"supplier"`
	ReceivedByID   uint              `json:"received_by_id"`
	RequestID      *uint             `json:"request_id"`
	SLTReferenceID string            `json:"slt_reference_id"`
	Remarks        string            `json:"remarks"`
	CreatedAt      string            `json:"created_at"`
	Lines          []LineResponse    `json:"lines"`
}

func toResponse(g models.GRN) Response {
	res := Response{
		ID:             g.ID,
		GRNNumber:      g.GRNNumber,
		StoreID:        g.StoreID,
		StoreName:      g.Store.Name,
		SourceType:     g.SourceType,
		Supplier:       g.Supplier,
		ReceivedByID:   g.ReceivedByID,
		RequestID:      g.RequestID,
		SLTReferenceID: g.SLTReferenceID,
		Remarks:        g.Remarks,
		CreatedAt:      g.CreatedAt.Format("2006-01-02 15:04:05"),
		Lines:          make([]LineResponse, 0, len(g.Lines)),
	}
	for _, l := range g.Lines {
		res.Lines = append(res.Lines, LineResponse{
			ID:        l.ID,
			ItemID:    l.ItemID,
			ItemCode:  l.Item.Code,
			ItemName:  l.Item.Name,
			Quantity:  l.Quantity,
			CostPrice: l.CostPrice.StringFixed(2),
			BatchID:   l.BatchID,
		})
	}
	return res
}

// POST /api/grns
func CreateGRNHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body CreateInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		g, err := svc.Create(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toResponse(*g)})
	}
}

// GET /api/grns/:id
func GetGRNHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return apperr.Validation("invalid id")
		}
		g, err := svc.Get(c.UserContext(), uint(id))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toResponse(*g)})
	}
}

// GET /api/grns?store_id=1&limit=20
func ListGRNsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		storeID, err := apperr.QueryID(c, "store_id")
		if err != nil {
			return err
		}
		if actor.StoreID != nil && actor.Role != models.RoleSuperAdmin {
			storeID = *actor.StoreID
		}
		grns, err := svc.List(c.UserContext(), storeID, c.QueryInt("limit"))
		if err != nil {
			return err
		}
		res := make([]Response, 0, len(grns))
		for _, g := range grns {
			res = append(res, toResponse(g))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}
