package catalog

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/audit"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// importColumns is the positional layout used when the sheet has no header row.
var importColumns = []string{"code", "name", "unit", "category", "type", "min_level", "wastage_allowed", "common_name", "tags"}

type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped []RowError `json:"skipped"`
}

// ImportItems upserts items from the first sheet of an xlsx workbook, keyed
// by code. Invalid rows are reported and skipped.
func (s *Service) ImportItems(ctx context.Context, actor models.Actor, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("cannot read workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("cannot read sheet %s: %v", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("sheet %s is empty", sheets[0])
	}

	cols, start := columnIndex(rows[0])
	res := &ImportResult{Skipped: []RowError{}}
	var touched []uint

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := start; i < len(rows); i++ {
			row := rows[i]
			cell := func(name string) string {
				idx, ok := cols[name]
				if !ok || idx >= len(row) {
					return ""
				}
				return strings.TrimSpace(row[idx])
			}
			if cell("code") == "" && cell("name") == "" {
				continue
			}

			in, err := rowInput(cell)
			if err == nil {
				err = in.normalize()
			}
			if err != nil {
				res.Skipped = append(res.Skipped, RowError{Row: i + 1, Reason: err.Error()})
				continue
			}

			var existing models.Item
			found := tx.Where("code = ?", in.Code).Limit(1).Find(&existing)
			if found.Error != nil {
				return found.Error
			}

			if found.RowsAffected == 0 {
				item := models.Item{
					Code: in.Code, Name: in.Name, Unit: in.Unit, Category: in.Category, Type: in.Type,
					MinLevel: in.MinLevel, IsWastageAllowed: in.IsWastageAllowed,
					CommonName: in.CommonName, Tags: in.Tags,
				}
				if err := tx.Create(&item).Error; err != nil {
					return fmt.Errorf("row %d: %w", i+1, err)
				}
				res.Created++
				continue
			}

			existing.Name, existing.Unit, existing.Category, existing.Type = in.Name, in.Unit, in.Category, in.Type
			existing.MinLevel, existing.IsWastageAllowed = in.MinLevel, in.IsWastageAllowed
			existing.CommonName, existing.Tags = in.CommonName, in.Tags
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			touched = append(touched, existing.ID)
			res.Updated++
		}

		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityItem,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Item import: %d created, %d updated, %d skipped", res.Created, res.Updated, len(res.Skipped)),
			After:       res,
		})
	})
	if err != nil {
		return nil, err
	}

	for _, id := range touched {
		s.invalidate(ctx, id)
	}
	logger.Logger.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", len(res.Skipped)).
		Msg("item import finished")
	return res, nil
}

// columnIndex maps column names to positions. A first row whose first cell
// reads CODE or ITEM CODE is treated as the header.
func columnIndex(first []string) (map[string]int, int) {
	cols := make(map[string]int, len(importColumns))
	if len(first) > 0 {
		head := strings.ToUpper(strings.TrimSpace(first[0]))
		if head == "CODE" || head == "ITEM CODE" {
			for i, h := range first {
				key := strings.ToLower(strings.TrimSpace(h))
				key = strings.ReplaceAll(key, " ", "_")
				switch key {
				case "item_code":
					key = "code"
				case "is_wastage_allowed":
					key = "wastage_allowed"
				}
				cols[key] = i
			}
			return cols, 1
		}
	}
	for i, name := range importColumns {
		cols[name] = i
	}
	return cols, 0
}

func rowInput(cell func(string) string) (ItemInput, error) {
	in := ItemInput{
		Code:       cell("code"),
		Name:       cell("name"),
		Unit:       cell("unit"),
		Category:   cell("category"),
		Type:       models.ItemType(strings.ToUpper(cell("type"))),
		CommonName: cell("common_name"),
		Tags:       cell("tags"),
	}
	if v := cell("min_level"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, fmt.Errorf("min_level %q is not a number", v)
		}
		in.MinLevel = n
	}
	switch strings.ToLower(cell("wastage_allowed")) {
	case "", "no", "n", "false", "0":
	case "yes", "y", "true", "1":
		in.IsWastageAllowed = true
	default:
		return in, fmt.Errorf("wastage_allowed %q must be yes or no", cell("wastage_allowed"))
	}
	return in, nil
}
