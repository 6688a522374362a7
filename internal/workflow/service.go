package workflow

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
	"osp-stores-backend/internal/metrics"
	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

// Catalog resolves the items and stores a request refers to.
type Catalog interface {
	GetItem(ctx context.Context, id uint) (*models.Item, error)
	GetStore(ctx context.Context, id uint) (*models.Store, error)
}

type Service struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	catalog Catalog
	policy  Policy
	now     func() time.Time
}

func NewService(db *gorm.DB, l *ledger.Ledger, catalog Catalog, policy Policy) *Service {
	return &Service{db: db, ledger: l, catalog: catalog, policy: policy, now: time.Now}
}

type CreateLineInput struct {
	ItemID          uint    `json:"item_id"`
	Quantity        float64 `json:"quantity"`
	Make            string  `json:"make"`
	Model           string  `json:"model"`
	SuggestedVendor string  `json:"suggested_vendor"`
	Remarks         string  `json:"remarks"`
}

type CreateRequestInput struct {
	FromStoreID  uint              `json:"from_store_id"`
	ToStoreID    *uint             `json:"to_store_id"`
	Priority     models.Priority   `json:"priority"`
	SourceType   models.SourceType `json:"source_type"`
	RequiredDate *time.Time        `json:"required_date"`
	Purpose      string            `json:"purpose"`
	IRNumber     string            `json:"ir_number"`
	Lines        []CreateLineInput `json:"items"`
}

// CreateRequest validates and stores a new request at ARM_APPROVAL.
func (s *Service) CreateRequest(ctx context.Context, actor models.Actor, in CreateRequestInput) (*models.StockRequest, error) {
	if err := s.validateCreate(ctx, &in); err != nil {
		return nil, err
	}

	now := s.now()
	req := models.StockRequest{
		RequestNr:     docnum.New(docnum.PrefixRequest, now),
		FromStoreID:   in.FromStoreID,
		ToStoreID:     in.ToStoreID,
		RequestedByID: actor.ID,
		Priority:      in.Priority,
		SourceType:    in.SourceType,
		WorkflowStage: models.StageARMApproval,
		Status:        models.RequestStatusPending,
		RequiredDate:  in.RequiredDate,
		Purpose:       strings.TrimSpace(in.Purpose),
		IRNumber:      strings.TrimSpace(in.IRNumber),
		Version:       1,
	}
	if req.IsExternal() {
		pending := models.ProcurementPending
		req.ProcurementStatus = &pending
	}
	for i, l := range in.Lines {
		req.Lines = append(req.Lines, models.RequestLine{
			ItemID:          l.ItemID,
			Position:        i + 1,
			RequestedQty:    ledger.Round(l.Quantity),
			Make:            l.Make,
			Model:           l.Model,
			SuggestedVendor: l.SuggestedVendor,
			Remarks:         l.Remarks,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &req.FromStoreID,
			Actor:       actor,
			EntityType:  audit.EntityStockRequest,
			EntityID:    req.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Request %s created with %d lines", req.RequestNr, len(req.Lines)),
			After:       req,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("request_nr", req.RequestNr).
		Uint("from_store", req.FromStoreID).
		Bool("external", req.IsExternal()).
		Msg("stock request created")
	return s.Get(ctx, req.ID)
}

func (s *Service) validateCreate(ctx context.Context, in *CreateRequestInput) error {
	if len(in.Lines) == 0 {
		return apperr.Validation("a request needs at least one item")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if !in.Priority.Valid() {
		return apperr.Validation("invalid priority %q", in.Priority)
	}

	from, err := s.catalog.GetStore(ctx, in.FromStoreID)
	if err != nil {
		return err
	}

	if in.ToStoreID != nil {
		if in.SourceType != models.SourceMainStore {
			return apperr.Validation("internal requests must use source type %s", models.SourceMainStore)
		}
		to, err := s.catalog.GetStore(ctx, *in.ToStoreID)
		if err != nil {
			return err
		}
		if from.ID == to.ID {
			return apperr.Validation("source and destination store must differ")
		}
		if from.Type != models.StoreTypeMain {
			return apperr.Validation("internal requests are released from a main store")
		}
		if to.Type != models.StoreTypeSub {
			return apperr.Validation("internal requests are received by a sub store")
		}
	} else {
		switch in.SourceType {
		case models.SourceSLT, models.SourceLocalPurchase:
		default:
			return apperr.Validation("external requests must use source type %s or %s", models.SourceSLT, models.SourceLocalPurchase)
		}
		if from.Type == models.StoreTypeSub && in.SourceType != models.SourceLocalPurchase {
			return apperr.Validation("sub stores may only raise %s requests", models.SourceLocalPurchase)
		}
	}

	if strings.TrimSpace(in.IRNumber) != "" && in.SourceType != models.SourceSLT {
		return apperr.Validation("ir_number is only allowed for %s requests", models.SourceSLT)
	}

	seen := make(map[uint]bool, len(in.Lines))
	for i, l := range in.Lines {
		if ledger.Round(l.Quantity) <= 0 {
			return apperr.Validation("item %d: quantity must be greater than zero", i+1)
		}
		if seen[l.ItemID] {
			return apperr.Validation("item %d is listed more than once", l.ItemID)
		}
		seen[l.ItemID] = true
		if _, err := s.catalog.GetItem(ctx, l.ItemID); err != nil {
			return err
		}
	}
	return nil
}

type ActionInput struct {
	Action          Action         `json:"action"`
	Remarks         string         `json:"remarks"`
	Allocation      []LineQuantity `json:"allocation"`
	ExpectedVersion *int           `json:"expected_version"`
	PurchaseOrder
}

// ProcessAction applies one workflow or procurement action atomically.
func (s *Service) ProcessAction(ctx context.Context, actor models.Actor, requestID uint, in ActionInput) (*models.StockRequest, error) {
	var from, to models.WorkflowStage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if in.ExpectedVersion != nil && *in.ExpectedVersion != req.Version {
			return apperr.Conflict("request %s is at version %d, expected %d", req.RequestNr, req.Version, *in.ExpectedVersion)
		}

		before := *req
		updates := map[string]any{}
		from, to = req.WorkflowStage, req.WorkflowStage

		if IsProcurementAction(in.Action) {
			d, err := DecideProcurement(req, actor, in.Action, in.PurchaseOrder)
			if err != nil {
				return err
			}
			updates["procurement_status"] = d.To
			if d.PO != nil {
				updates["po_number"] = d.PO.PONumber
				updates["vendor"] = d.PO.Vendor
				updates["expected_delivery"] = d.PO.ExpectedDelivery
			}
			if d.Stage != nil {
				to = *d.Stage
				updates["workflow_stage"] = to
			}
		} else {
			d, err := Decide(req, actor, in.Action, in.Allocation, s.policy)
			if err != nil {
				return err
			}
			if err := s.apply(tx, req, d); err != nil {
				return err
			}
			to = d.To
			updates["workflow_stage"] = d.To
			updates["status"] = d.Status
		}

		updates["version"] = req.Version + 1
		updates["updated_at"] = s.now()
		res := tx.Model(&models.StockRequest{}).
			Where("id = ? AND version = ?", req.ID, req.Version).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update request: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("request %s was modified concurrently, reload and retry", req.RequestNr)
		}

		entry := models.RequestActionLog{
			RequestID: req.ID,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Action:    string(in.Action),
			FromStage: from,
			ToStage:   to,
			Remarks:   strings.TrimSpace(in.Remarks),
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
			Description: fmt.Sprintf("%s on %s: %s -> %s", in.Action, req.RequestNr, from, to),
			Before:      before,
			After:       updates,
		})
	})
	metrics.WorkflowTransitions.WithLabelValues(string(in.Action), metrics.Outcome(err)).Inc()
	if err != nil {
		logger.Logger.Warn().Err(err).
			Uint("request_id", requestID).
			Str("action", string(in.Action)).
			Uint("actor_id", actor.ID).
			Msg("request action refused")
		return nil, err
	}

	logger.Logger.Info().
		Uint("request_id", requestID).
		Str("action", string(in.Action)).
		Str("from", string(from)).
		Str("to", string(to)).
		Uint("actor_id", actor.ID).
		Msg("request action applied")
	return s.Get(ctx, requestID)
}

// apply writes the decided line quantities and performs the ledger effect.
func (s *Service) apply(tx *gorm.DB, req *models.StockRequest, d *Decision) error {
	if d.Field == QtyNone {
		return nil
	}

	var consumed map[uint][]ledger.Allocation
	if d.Effect == EffectReceive {
		rows, err := ledger.Consumptions(tx, ledger.RefRequestRelease, req.ID)
		if err != nil {
			return fmt.Errorf("load release draws: %w", err)
		}
		consumed = make(map[uint][]ledger.Allocation)
		for _, r := range rows {
			consumed[r.RefLineID] = append(consumed[r.RefLineID], ledger.Allocation{
				BatchID:   r.BatchID,
				Quantity:  r.Quantity,
				CostPrice: r.CostPrice,
			})
		}
	}

	for _, line := range req.Lines {
		qty := d.Quantities[line.ID]
		if err := tx.Model(&models.RequestLine{}).
			Where("id = ?", line.ID).
			Update(d.Field.Column(), qty).Error; err != nil {
			return fmt.Errorf("update line %d: %w", line.ID, err)
		}
		if qty <= 0 {
			continue
		}

		switch d.Effect {
		case EffectRelease:
			_, err := s.ledger.Deplete(tx, req.FromStoreID, line.ItemID, qty, ledger.Ref{
				Type:   ledger.RefRequestRelease,
				ID:     req.ID,
				LineID: line.ID,
			})
			if err != nil {
				return err
			}
		case EffectReceive:
			if issued := carried(line, QtyIssued); qty > issued {
				return apperr.Validation("line %d: received %.3f exceeds issued %.3f", line.Position, qty, issued)
			}
			_, err := s.ledger.Receive(tx, ledger.ReceiveInput{
				StoreID:   *req.ToStoreID,
				ItemID:    line.ItemID,
				Quantity:  qty,
				CostPrice: ledger.WeightedCost(consumed[line.ID]),
				Source:    models.BatchSourceTransfer,
				SourceRef: req.RequestNr,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func lockRequest(tx *gorm.DB, id uint) (*models.StockRequest, error) {
	var req models.StockRequest
	if err := database.ForUpdate(tx).First(&req, id).Error; err != nil {
		return nil, apperr.FromLookup(err, "request", id)
	}
	if err := tx.Where("request_id = ?", id).Order("position ASC").Find(&req.Lines).Error; err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	return &req, nil
}

// Get loads a request with its lines, stores and action history.
func (s *Service) Get(ctx context.Context, id uint) (*models.StockRequest, error) {
	var req models.StockRequest
	err := s.db.WithContext(ctx).
		Preload("FromStore").
		Preload("ToStore").
		Preload("RequestedBy").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Lines.Item").
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&req, id).Error
	if err != nil {
		return nil, apperr.FromLookup(err, "request", id)
	}
	return &req, nil
}

type ListFilter struct {
	Stage         models.WorkflowStage
	Status        models.RequestStatus
	StoreID       uint // matches either side of the request
	RequestedByID uint
	Limit         int
	Offset        int
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.StockRequest, error) {
	q := s.db.WithContext(ctx).Model(&models.StockRequest{})
	if f.Stage != "" {
		q = q.Where("workflow_stage = ?", f.Stage)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.StoreID != 0 {
		q = q.Where("from_store_id = ? OR to_store_id = ?", f.StoreID, f.StoreID)
	}
	if f.RequestedByID != 0 {
		q = q.Where("requested_by_id = ?", f.RequestedByID)
	}
	return page(q, f.Limit, f.Offset)
}

// Queue lists the open requests whose current stage the actor can act on,
// including requests awaiting a GRN for store staff. Sub store officers bound to a store only see requests headed there.
func (s *Service) Queue(ctx context.Context, actor models.Actor, limit, offset int) ([]models.StockRequest, error) {
	stages := StagesFor(actor.Role)
	if actor.Role == models.RoleStoresManager || actor.Role == models.RoleStoresAssistant {
		stages = append(stages, models.StageGRNPending)
	}
	if len(stages) == 0 {
		return []models.StockRequest{}, nil
	}
	q := s.db.WithContext(ctx).Model(&models.StockRequest{}).Where("workflow_stage IN ?", stages)
	if actor.Role == models.RoleSubStoreOfficer && actor.StoreID != nil {
		q = q.Where("to_store_id = ?", *actor.StoreID)
	}
	return page(q, limit, offset)
}

func page(q *gorm.DB, limit, offset int) ([]models.StockRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.StockRequest
	err := q.Preload("FromStore").
		Preload("ToStore").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}
