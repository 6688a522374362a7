package adjustment

import (
	"context"
	"fmt"
	"strings"

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

type MRNInput struct {
	StoreID    uint                `json:"store_id"`
	ReturnedBy string              `json:"returned_by"`
	ProjectRef string              `json:"project_ref"`
	Reason     models.ReturnReason `json:"reason"`
	Remarks    string              `json:"remarks"`
	Items      []LineInput         `json:"items"`
}

// CreateMRN records a return as PENDING. Stock is untouched until approval.
func (s *Service) CreateMRN(ctx context.Context, actor models.Actor, in MRNInput) (*models.MRN, error) {
	if err := requireRole(actor, "create returns",
		models.RoleStoresManager, models.RoleStoresAssistant, models.RoleSubStoreOfficer); err != nil {
		return nil, err
	}
	if err := requireOwnStore(actor, in.StoreID); err != nil {
		return nil, err
	}

	switch in.Reason {
	case models.ReturnDefective, models.ReturnExcess, models.ReturnUnused:
	default:
		return nil, apperr.Validation("reason must be %s, %s or %s",
			models.ReturnDefective, models.ReturnExcess, models.ReturnUnused)
	}
	in.ReturnedBy = strings.TrimSpace(in.ReturnedBy)
	if in.ReturnedBy == "" {
		return nil, apperr.Validation("returned_by is required")
	}
	if _, err := s.catalog.GetStore(ctx, in.StoreID); err != nil {
		return nil, err
	}
	if err := s.validateLines(ctx, in.Items); err != nil {
		return nil, err
	}

	mrn := models.MRN{
		MRNNumber:   docnum.New(docnum.PrefixMRN, s.now()),
		StoreID:     in.StoreID,
		ReturnedBy:  in.ReturnedBy,
		ProjectRef:  strings.TrimSpace(in.ProjectRef),
		Reason:      in.Reason,
		Status:      models.MRNStatusPending,
		CreatedByID: actor.ID,
		Remarks:     strings.TrimSpace(in.Remarks),
	}
	for _, l := range in.Items {
		mrn.Lines = append(mrn.Lines, models.MRNLine{ItemID: l.ItemID, Quantity: ledger.Round(l.Quantity)})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&mrn).Error; err != nil {
			return fmt.Errorf("create mrn: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &mrn.StoreID,
			Actor:       actor,
			EntityType:  audit.EntityMRN,
			EntityID:    mrn.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("MRN %s from %s (%s)", mrn.MRNNumber, mrn.ReturnedBy, mrn.Reason),
			After:       mrn,
		})
	})
	if err != nil {
		return nil, err
	}
	return &mrn, nil
}

// ApproveMRN receives every line back as a zero-cost RETURN batch.
func (s *Service) ApproveMRN(ctx context.Context, actor models.Actor, id uint, remarks string) (*models.MRN, error) {
	return s.decideMRN(ctx, actor, id, models.MRNStatusApproved, remarks)
}

func (s *Service) RejectMRN(ctx context.Context, actor models.Actor, id uint, remarks string) (*models.MRN, error) {
	return s.decideMRN(ctx, actor, id, models.MRNStatusRejected, remarks)
}

func (s *Service) decideMRN(ctx context.Context, actor models.Actor, id uint, to models.MRNStatus, remarks string) (*models.MRN, error) {
	if err := requireRole(actor, "decide returns", models.RoleStoresManager); err != nil {
		return nil, err
	}

	var mrn models.MRN
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&mrn, id).Error; err != nil {
			return apperr.FromLookup(err, "MRN", id)
		}
		if err := requireOwnStore(actor, mrn.StoreID); err != nil {
			return err
		}
		if mrn.Status != models.MRNStatusPending {
			return apperr.Conflict("MRN %s is already %s", mrn.MRNNumber, mrn.Status)
		}
		if err := tx.Where("mrn_id = ?", mrn.ID).Order("id ASC").Find(&mrn.Lines).Error; err != nil {
			return fmt.Errorf("load mrn lines: %w", err)
		}
		before := mrn

		if to == models.MRNStatusApproved {
			for i, l := range mrn.Lines {
				batch, err := s.ledger.Receive(tx, ledger.ReceiveInput{
					StoreID:   mrn.StoreID,
					ItemID:    l.ItemID,
					Quantity:  l.Quantity,
					CostPrice: decimal.Zero,
					Source:    models.BatchSourceReturn,
					SourceRef: mrn.MRNNumber,
				})
				if err != nil {
					return err
				}
				if err := tx.Model(&models.MRNLine{}).Where("id = ?", l.ID).Update("batch_id", batch.ID).Error; err != nil {
					return fmt.Errorf("link return batch: %w", err)
				}
				mrn.Lines[i].BatchID = &batch.ID
			}
		}

		now := s.now()
		res := tx.Model(&models.MRN{}).
			Where("id = ? AND status = ?", mrn.ID, models.MRNStatusPending).
			Updates(map[string]any{
				"status":        to,
				"decided_by_id": actor.ID,
				"decided_at":    now,
				"remarks":       strings.TrimSpace(remarks),
				"updated_at":    now,
			})
		if res.Error != nil {
			return fmt.Errorf("update mrn: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("MRN %s was decided concurrently", mrn.MRNNumber)
		}
		mrn.Status, mrn.DecidedByID, mrn.DecidedAt = to, &actor.ID, &now
		mrn.Remarks = strings.TrimSpace(remarks)

		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &mrn.StoreID,
			Actor:       actor,
			EntityType:  audit.EntityMRN,
			EntityID:    mrn.ID,
			Action:      models.AuditActionTransition,
			Description: fmt.Sprintf("MRN %s %s", mrn.MRNNumber, to),
			Before:      before,
			After:       mrn,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("mrn_number", mrn.MRNNumber).
		Str("status", string(mrn.Status)).
		Uint("actor_id", actor.ID).
		Msg("return decided")
	return &mrn, nil
}

func (s *Service) GetMRN(ctx context.Context, id uint) (*models.MRN, error) {
	var mrn models.MRN
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Lines.Item").
		First(&mrn, id).Error
	if err != nil {
		return nil, apperr.FromLookup(err, "MRN", id)
	}
	return &mrn, nil
}

type MRNFilter struct {
	StoreID uint
	Status  models.MRNStatus
	Limit   int
}

func (s *Service) ListMRNs(ctx context.Context, f MRNFilter) ([]models.MRN, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q := s.db.WithContext(ctx).Preload("Lines")
	if f.StoreID != 0 {
		q = q.Where("store_id = ?", f.StoreID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []models.MRN
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list mrns: %w", err)
	}
	return out, nil
}
