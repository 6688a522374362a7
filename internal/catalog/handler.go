package catalog

import (
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ItemResponse struct {
	ID               uint            `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Category         string          `json:"category"`
	Type             models.ItemType `json:"type"`
	MinLevel         float64         `json:"min_level"`
	IsWastageAllowed bool            `json:"is_wastage_allowed"`
	CommonName       string          `json:"common_name"`
	Tags             string          `json:"tags"`
}

func toItemResponse(i models.Item) ItemResponse {
	return ItemResponse{
		ID:               i.ID,
		Code:             i.Code,
		Name:             i.Name,
		Unit:             i.Unit,
		Category:         i.Category,
		Type:             i.Type,
		MinLevel:         i.MinLevel,
		IsWastageAllowed: i.IsWastageAllowed,
		CommonName:       i.CommonName,
		Tags:             i.Tags,
	}
}

type StoreResponse struct {
	ID       uint             `json:"id"`
	Name     string           `json:"name"`
	Type     models.StoreType `json:"type"`
	Location string           `json:"location"`
}

func toStoreResponse(s models.Store) StoreResponse {
	return StoreResponse{ID: s.ID, Name: s.Name, Type: s.Type, Location: s.Location}
}

type StockLevelResponse struct {
	ItemID   uint    `json:"item_id"`
	ItemCode string  `json:"item_code"`
	ItemName string  `json:"item_name"`
	Unit     string  `json:"unit"`
	Quantity float64 `json:"quantity"`
	MinLevel float64 `json:"min_level"`
	IsLow    bool    `json:"is_low"`
}

type BatchResponse struct {
	ID           uint               `json:"id"`
	BatchNumber  string             `json:"batch_number"`
	InitialQty   float64            `json:"initial_qty"`
	RemainingQty float64            `json:"remaining_qty"`
	CostPrice    string             `json:"cost_price"`
	SourceType   models.BatchSource `json:"source_type"`
	SourceRef    string             `json:"source_ref"`
	CreatedAt    string             `json:"created_at"`
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return uint(id), nil
}

// GET /api/items?search=cable&category=...&type=SLT
func ListItemsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.ListItems(c.UserContext(), ItemFilter{
			Search:   c.Query("search"),
			Category: c.Query("category"),
			Type:     models.ItemType(strings.ToUpper(c.Query("type"))),
		})
		if err != nil {
			return err
		}
		res := make([]ItemResponse, 0, len(items))
		for _, i := range items {
			res = append(res, toItemResponse(i))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// POST /api/items
func CreateItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body ItemInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		item, err := svc.CreateItem(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toItemResponse(*item)})
	}
}

// PUT /api/items/:id
func UpdateItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		var body ItemPatch
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		item, err := svc.UpdateItem(c.UserContext(), actor, id, body)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": toItemResponse(*item)})
	}
}

// DELETE /api/items/:id
func DeleteItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		if err := svc.DeleteItem(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/items/import (multipart, field "file")
func ImportItemsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not open upload")
		}
		defer file.Close()

		res, err := svc.ImportItems(c.UserContext(), actor, file)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/items/low-stock?store_id=2
// Users bound to a store only see that store.
func LowStockHandler(svc *Service) fiber.Handler {
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
		rows, err := svc.LowStock(c.UserContext(), storeID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": rows})
	}
}

// GET /api/stores?type=SUB
func ListStoresHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stores, err := svc.ListStores(c.UserContext(), models.StoreType(strings.ToUpper(c.Query("type"))))
		if err != nil {
			return err
		}
		res := make([]StoreResponse, 0, len(stores))
		for _, s := range stores {
			res = append(res, toStoreResponse(s))
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// POST /api/stores
func CreateStoreHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		var body StoreInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		store, err := svc.CreateStore(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": toStoreResponse(*store)})
	}
}

// GET /api/stores/:id/stock
func StoreStockHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		levels, err := svc.StoreStock(c.UserContext(), id)
		if err != nil {
			return err
		}
		res := make([]StockLevelResponse, 0, len(levels))
		for _, l := range levels {
			res = append(res, StockLevelResponse{
				ItemID:   l.ItemID,
				ItemCode: l.Item.Code,
				ItemName: l.Item.Name,
				Unit:     l.Item.Unit,
				Quantity: l.Quantity,
				MinLevel: l.Item.MinLevel,
				IsLow:    l.Item.MinLevel > 0 && l.Quantity < l.Item.MinLevel,
			})
		}
		return c.JSON(fiber.Map{"success": true, "data": res})
	}
}

// GET /api/stores/:id/items/:itemId/batches?include_empty=true
func BatchesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		storeID, err := paramID(c, "id")
		if err != nil {
			return err
		}
		itemID, err := paramID(c, "itemId")
		if err != nil {
			return err
		}
		batches, rec, err := svc.Batches(c.UserContext(), storeID, itemID, c.QueryBool("include_empty"))
		if err != nil {
			return err
		}
		res := make([]BatchResponse, 0, len(batches))
		for _, b := range batches {
			res = append(res, BatchResponse{
				ID:           b.ID,
				BatchNumber:  b.BatchNumber,
				InitialQty:   b.InitialQty,
				RemainingQty: b.RemainingQty,
				CostPrice:    b.CostPrice.StringFixed(2),
				SourceType:   b.SourceType,
				SourceRef:    b.SourceRef,
				CreatedAt:    b.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{
			"batches":        res,
			"reconciliation": rec,
		}})
	}
}
