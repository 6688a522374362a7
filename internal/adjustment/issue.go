package adjustment

import (
	"context"
	"fmt"
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/docnum"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"

	"gorm.io/gorm"
)

type IssueInput struct {
	StoreID      uint                   `json:"store_id"`
	IssuedToType models.IssueTargetType `json:"issued_to_type"`
	IssuedToRef  string                 `json:"issued_to_ref"`
	Remarks      string                 `json:"remarks"`
	Items        []LineInput            `json:"items"`
}

// CreateIssue hands stock to a project, contractor or team. Every line is
// depleted FIFO or none is.
func (s *Service) CreateIssue(ctx context.Context, actor models.Actor, in IssueInput) (*models.StockIssue, error) {
	if err := requireRole(actor, "issue stock",
		models.RoleStoresManager, models.RoleStoresAssistant, models.RoleSubStoreOfficer); err != nil {
		return nil, err
	}
	if err := requireOwnStore(actor, in.StoreID); err != nil {
		return nil, err
	}

	switch in.IssuedToType {
	case models.IssueToProject, models.IssueToContractor, models.IssueToTeam:
	default:
		return nil, apperr.Validation("issued_to_type must be %s, %s or %s",
			models.IssueToProject, models.IssueToContractor, models.IssueToTeam)
	}
	in.IssuedToRef = strings.TrimSpace(in.IssuedToRef)
	if in.IssuedToRef == "" {
		return nil, apperr.Validation("issued_to_ref is required")
	}
	if _, err := s.catalog.GetStore(ctx, in.StoreID); err != nil {
		return nil, err
	}
	if err := s.validateLines(ctx, in.Items); err != nil {
		return nil, err
	}

	issue := models.StockIssue{
		IssueNumber:  docnum.New(docnum.PrefixIssue, s.now()),
		StoreID:      in.StoreID,
		IssuedToType: in.IssuedToType,
		IssuedToRef:  in.IssuedToRef,
		IssuedByID:   actor.ID,
		Status:       models.IssueStatusIssued,
		Remarks:      strings.TrimSpace(in.Remarks),
	}
	for _, l := range in.Items {
		issue.Lines = append(issue.Lines, models.StockIssueLine{ItemID: l.ItemID, Quantity: ledger.Round(l.Quantity)})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&issue).Error; err != nil {
			return fmt.Errorf("create issue: %w", err)
		}
		for _, l := range issue.Lines {
			if _, err := s.ledger.Deplete(tx, issue.StoreID, l.ItemID, l.Quantity, ledger.Ref{
				Type:   ledger.RefIssue,
				ID:     issue.ID,
				LineID: l.ID,
			}); err != nil {
				return err
			}
		}
		return audit.WriteLog(tx, audit.LogOptions{
			StoreID:     &issue.StoreID,
			Actor:       actor,
			EntityType:  audit.EntityStockIssue,
			EntityID:    issue.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Issue %s to %s %s, %d lines", issue.IssueNumber, issue.IssuedToType, issue.IssuedToRef, len(issue.Lines)),
			After:       issue,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("issue_number", issue.IssueNumber).
		Uint("store_id", issue.StoreID).
		Str("issued_to", string(issue.IssuedToType)+":"+issue.IssuedToRef).
		Msg("stock issued")
	return &issue, nil
}
