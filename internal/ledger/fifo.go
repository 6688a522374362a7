package ledger

import (
	"math"
	"sort"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
)

// quantities are kept to three decimals (metres of cable, kg of wire)
const qtyScale = 1000

func Round(q float64) float64 {
	return math.Round(q*qtyScale) / qtyScale
}

// Allocation: quantity taken from one batch by a depletion.
type Allocation struct {
	BatchID     uint            `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    float64         `json:"quantity"`
	CostPrice   decimal.Decimal `json:"cost_price"`
}

// Allocate picks batches oldest first until qty is covered. It never mutates
// the input; an insufficient total returns an InsufficientStock error and no
// allocations.
func Allocate(batches []models.StockBatch, qty float64) ([]Allocation, error) {
	qty = Round(qty)
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be greater than zero")
	}

	ordered := make([]models.StockBatch, 0, len(batches))
	available := 0.0
	for _, b := range batches {
		if b.RemainingQty <= 0 {
			continue
		}
		ordered = append(ordered, b)
		available = Round(available + b.RemainingQty)
	}
	if available < qty {
		return nil, apperr.InsufficientStock("requested %.3f but only %.3f available", qty, available)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	allocs := make([]Allocation, 0, len(ordered))
	left := qty
	for _, b := range ordered {
		if left <= 0 {
			break
		}
		take := math.Min(b.RemainingQty, left)
		allocs = append(allocs, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    Round(take),
			CostPrice:   b.CostPrice,
		})
		left = Round(left - take)
	}
	return allocs, nil
}

// WeightedCost is the quantity-weighted average cost of a set of allocations.
func WeightedCost(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	qty := decimal.Zero
	for _, a := range allocs {
		q := decimal.NewFromFloat(a.Quantity)
		total = total.Add(a.CostPrice.Mul(q))
		qty = qty.Add(q)
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return total.Div(qty).Round(2)
}
