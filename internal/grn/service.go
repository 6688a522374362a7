package grn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/database"
	"osp-stores-backend/internal/docnum"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActionGRNReceived is recorded in a request's history when a GRN closes it.
const ActionGRNReceived = "GRN_RECEIVED"

type Catalog interface {
	GetItem(ctx context.Context, id uint) (*models.Item, error)
	GetStore(ctx context.Context, id uint) (*models.Store, error)
}

type Service struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog Catalog
	now     func() time.Time
}

func NewService(db *gorm.DB, l *ledger.Ledger, catalog Catalog) *Service {
	return &Service{db: db, ledger: l, catalog: catalog, now: time.Now}
}

type ItemInput struct {
	ItemID    uint            `json:"item_id"`
	Quantity  float64         `json:"quantity"`
	CostPrice decimal.Decimal `json:"cost_price"`
}

type CreateInput struct {
	StoreID        uint              `json:"store_id"`
	RequestID      *uint             `json:"request_id"`
	SourceType     models.SourceType `json:"source_type"`
	Supplier       string            `json:"supplier"`
	SLTReferenceID string            `json:"slt_reference_id"`
	Remarks        string            `json:"remarks"`
	Items          []ItemInput       `json:"items"`
}

var receivingRoles = map[models.UserRole]bool{
	models.RoleStoresManager:   true,
	models.RoleStoresAssistant: true,
}

// Create books every line as a new batch in one transaction. A GRN raised
// against a request completes that request.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.GRN, error) {
	if !receivingRoles[actor.Role] {
		return nil, apperr.Authorization("role %s cannot receive goods", actor.Role)
	}
	if actor.StoreID != nil && *actor.StoreID != in.StoreID {
		return nil, apperr.Authorization("goods can only be received into your own store")
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	now := s.now()
	g := models.GRN{
		GRNNumber:      docnum.New(docnum.PrefixGRN, now),
		StoreID:        in.StoreID,
		SourceType:     in.SourceType,
		Supplier:       strings.TrimSpace(in.Supplier),
		ReceivedByID:   actor.ID,
		RequestID:      in.RequestID,
		SLTReferenceID: strings.TrimSpace(in.SLTReferenceID),
		Remarks:        strings.TrimSpace(in.Remarks),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req *models.StockRequest
		if in.RequestID != nil {
			var err error
			if req, err = lockPendingRequest(tx, *in.RequestID, &in); err != nil {
				return err
			}
			g.SourceType = in.SourceType
		}

		if err := tx.Create(&g).Error; err != nil {
			return fmt.Errorf("create grn: %w", err)
		}

		received := make(map[uint]float64)
		for _, it := range in.Items {
			batch, err := s.ledger.Receive(tx, ledger.ReceiveInput{
				StoreID:   g.StoreID,
				ItemID:    it.ItemID,
				Quantity:  it.Quantity,
				CostPrice: it.CostPrice,
				Source:    models.BatchSourceGRN,
				SourceRef: g.GRNNumber,
				GRNID:     &g.ID,
			})
			if err != nil {
				return err
			}
			line := models.GRNLine{
				GRNID:     g.ID,
				ItemID:    it.ItemID,
				Quantity:  batch.InitialQty,
				CostPrice: it.CostPrice,
				BatchID:   batch.ID,
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("create grn line: %w", err)
			}
			g.Lines = append(g.Lines, line)
			received[it.ItemID] = ledger.Round(received[it.ItemID] + batch.InitialQty)
		}

		if req != nil {
			if err := s.completeRequest(tx, actor, req, &g, received); err != nil {
				return err
			}
		}

		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &g.StoreID,
			Actor:       actor,
			EntityType:  audit.EntityGRN,
			EntityID:    g.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("GRN %s received with %d lines", g.GRNNumber, len(g.Lines)),
			After:       g,
		})
	})
	if err != nil {
		return nil, err
	}

	evt := logger.Logger.Info().
		Str("grn_number", g.GRNNumber).
		Uint("store_id", g.StoreID).
		Int("lines", len(g.Lines))
	if g.RequestID != nil {
		evt = evt.Uint("request_id", *g.RequestID)
	}
	evt.Msg("goods received")
	return s.Get(ctx, g.ID)
}

func (s *Service) validate(ctx context.Context, in *CreateInput) error {
	if len(in.Items) == 0 {
		return apperr.Validation("a GRN needs at least one item")
	}
	if _, err := s.catalog.GetStore(ctx, in.StoreID); err != nil {
		return err
	}
	if in.RequestID == nil {
		switch in.SourceType {
		case models.SourceSLT, models.SourceLocalPurchase:
		default:
			return apperr.Validation("GRN source type must be %s or %s", models.SourceSLT, models.SourceLocalPurchase)
		}
	}
	for i, it := range in.Items {
		if ledger.Round(it.Quantity) <= 0 {
			return apperr.Validation("item %d: quantity must be greater than zero", i+1)
		}
		if it.CostPrice.IsNegative() {
			return apperr.Validation("item %d: cost price cannot be negative", i+1)
		}
		if _, err := s.catalog.GetItem(ctx, it.ItemID); err != nil {
			return err
		}
	}
	return nil
}

// lockPendingRequest checks the GRN against the request it closes and
// defaults the GRN source type from it.
func lockPendingRequest(tx *gorm.DB, id uint, in *CreateInput) (*models.StockRequest, error) {
	var req models.StockRequest
	if err := database.ForUpdate(tx).First(&req, id).Error; err != nil {
		return nil, apperr.FromLookup(err, "request", id)
	}
	if req.WorkflowStage != models.StageGRNPending {
		return nil, apperr.Conflict("request %s is at %s, not awaiting a GRN", req.RequestNr, req.WorkflowStage)
	}
	if req.FromStoreID != in.StoreID {
		return nil, apperr.Validation("request %s is for store %d, not %d", req.RequestNr, req.FromStoreID, in.StoreID)
	}
	if in.SourceType == "" {
		in.SourceType = req.SourceType
	} else if in.SourceType != req.SourceType {
		return nil, apperr.Validation("request %s is sourced %s, GRN says %s", req.RequestNr, req.SourceType, in.SourceType)
	}
	if err := tx.Where("request_id = ?", id).Order("position ASC").Find(&req.Lines).Error; err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}

	onRequest := make(map[uint]bool, len(req.Lines))
	for _, l := range req.Lines {
		onRequest[l.ItemID] = true
	}
	for _, it := range in.Items {
		if !onRequest[it.ItemID] {
			return nil, apperr.Validation("item %d is not on request %s", it.ItemID, req.RequestNr)
		}
	}
	return &req, nil
}

func (s *Service) completeRequest(tx *gorm.DB, actor models.Actor, req *models.StockRequest, g *models.GRN, received map[uint]float64) error {
	for _, l := range req.Lines {
		if err := tx.Model(&models.RequestLine{}).
			Where("id = ?", l.ID).
			Update("received_qty", received[l.ItemID]).Error; err != nil {
			return fmt.Errorf("update line %d: %w", l.ID, err)
		}
	}

	res := tx.Model(&models.StockRequest{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(map[string]any{
			"workflow_stage": models.StageCompleted,
			"status":         models.RequestStatusCompleted,
			"version":        req.Version + 1,
			"updated_at":     s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("complete request: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.Conflict("request %s was modified concurrently, reload and retry", req.RequestNr)
	}

	entry := models.RequestActionLog{
		RequestID: req.ID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    ActionGRNReceived,
		FromStage: models.StageGRNPending,
		ToStage:   models.StageCompleted,
		Remarks:   g.GRNNumber,
		CreatedAt: s.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return audit.WriteLog(tx, audit.LogOptions{
		StoreID:     &req.FromStoreID,
		Actor:       actor,
		EntityType:  audit.EntityStockRequest,
		EntityID:    req.ID,
		Action:      models.AuditActionTransition,
		Description: fmt.Sprintf("%s on %s: %s -> %s", ActionGRNReceived, req.RequestNr, models.StageGRNPending, models.StageCompleted),
	})
}

func (s *Service) Get(ctx context.Context, id uint) (*models.GRN, error) {
	var g models.GRN
	err := s.db.WithContext(ctx).
		Preload("Store").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Lines.Item").
		First(&g, id).Error
	if err != nil {
		return nil, apperr.FromLookup(err, "GRN", id)
	}
	return &g, nil
}

// List returns the latest GRNs, optionally for one store.
func (s *Service) List(ctx context.Context, storeID uint, limit int) ([]models.GRN, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Preload("Store").Preload("Lines")
	if storeID != 0 {
		q = q.Where("store_id = ?", storeID)
	}
	var out []models.GRN
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list grns: %w", err)
	}
	return out, nil
}
