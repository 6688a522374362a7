package audit

import (
	"strconv"

	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	StoreID     *uint              `json:"store_id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	UserRole    models.UserRole    `json:"user_role"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
}

// GET /api/audit-logs?entity_type=stock_request&entity_id=1&store_id=1
// Users bound to a store only see that store's entries.
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		f := Filter{
			EntityType: c.Query("entity_type"),
			EntityID:   uint(parseUint(c.Query("entity_id"))),
			UserID:     uint(parseUint(c.Query("user_id"))),
			Limit:      int(parseUint(c.Query("limit"))),
		}
		if actor.StoreID != nil && actor.Role != models.RoleSuperAdmin {
			f.StoreID = actor.StoreID
		} else if sid := parseUint(c.Query("store_id")); sid > 0 {
			id := uint(sid)
			f.StoreID = &id
		}

		logs, err := List(db, f)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				StoreID:     l.StoreID,
				UserID:      l.UserID,
				UserName:    l.UserName,
				UserRole:    l.UserRole,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
			})
		}

		return c.JSON(fiber.Map{"success": true, "data": resp})
	}
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return v
}
