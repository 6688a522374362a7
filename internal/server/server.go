// Package server assembles the Fiber application and its routes.
package server

import (
	"strings"

	"osp-stores-backend/internal/adjustment"
	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/auth"
	"osp-stores-backend/internal/catalog"
	"osp-stores-backend/internal/config"
	"osp-stores-backend/internal/grn"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/metrics"
	"osp-stores-backend/internal/models"
	"osp-stores-backend/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type Deps struct {
	Config     *config.Config
	DB         *gorm.DB
	Catalog    *catalog.Service
	Workflow   *workflow.Service
	GRN        *grn.Service
	Adjustment *adjustment.Service
}

func New(d Deps) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.ErrorHandler,
		BodyLimit:    8 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(logger.RequestLogger())
	app.Use(metrics.Middleware())

	app.Get("/health", healthHandler(d.DB))
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(d.DB))
	api.Post("/auth/login", auth.LoginHandler(d.DB, cfg.JWTSecret, cfg.JWTTTL))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(d.DB, cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(d.DB))

	// Super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))
	adminRoutes.Post("/users", auth.CreateUserHandler(d.DB))
	adminRoutes.Get("/users", auth.ListUsersHandler(d.DB))

	catalogEditors := auth.RequireRole(models.RoleSuperAdmin, models.RoleStoresManager)

	// Item master
	protected.Get("/items", catalog.ListItemsHandler(d.Catalog))
	protected.Get("/items/low-stock", catalog.LowStockHandler(d.Catalog))
	protected.Post("/items", catalogEditors, catalog.CreateItemHandler(d.Catalog))
	protected.Post("/items/import", catalogEditors, catalog.ImportItemsHandler(d.Catalog))
	protected.Put("/items/:id", catalogEditors, catalog.UpdateItemHandler(d.Catalog))
	protected.Delete("/items/:id", catalogEditors, catalog.DeleteItemHandler(d.Catalog))

	// Stores and stock views
	protected.Get("/stores", catalog.ListStoresHandler(d.Catalog))
	protected.Post("/stores", auth.RequireRole(models.RoleSuperAdmin), catalog.CreateStoreHandler(d.Catalog))
	protected.Get("/stores/:id/stock", catalog.StoreStockHandler(d.Catalog))
	protected.Get("/stores/:id/items/:itemId/batches", catalog.BatchesHandler(d.Catalog))

	// Stock requests
	protected.Post("/requests", workflow.CreateRequestHandler(d.Workflow))
	protected.Get("/requests", workflow.ListRequestsHandler(d.Workflow))
	protected.Get("/requests/queue", workflow.QueueHandler(d.Workflow))
	protected.Get("/requests/:id", workflow.GetRequestHandler(d.Workflow))
	protected.Post("/requests/:id/actions", workflow.ProcessActionHandler(d.Workflow))

	// Goods received
	protected.Post("/grns", grn.CreateGRNHandler(d.GRN))
	protected.Get("/grns", grn.ListGRNsHandler(d.GRN))
	protected.Get("/grns/:id", grn.GetGRNHandler(d.GRN))

	// Adjustments
	protected.Post("/wastage", adjustment.RecordWastageHandler(d.Adjustment))
	protected.Post("/issues", adjustment.CreateIssueHandler(d.Adjustment))
	protected.Post("/mrns", adjustment.CreateMRNHandler(d.Adjustment))
	protected.Get("/mrns", adjustment.ListMRNsHandler(d.Adjustment))
	protected.Get("/mrns/:id", adjustment.GetMRNHandler(d.Adjustment))
	protected.Post("/mrns/:id/approve", adjustment.ApproveMRNHandler(d.Adjustment))
	protected.Post("/mrns/:id/reject", adjustment.RejectMRNHandler(d.Adjustment))

	protected.Get("/audit-logs",
		auth.RequireRole(models.RoleSuperAdmin, models.RoleStoresManager, models.RoleOSPManager),
		audit.ListAuditLogsHandler(d.DB),
	)

	return app
}

// GET /health
func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "database unreachable",
			})
		}
		return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"status": "ok"}})
	}
}
