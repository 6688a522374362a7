package ledger

import (
	"fmt"
	"testing"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func batch(id uint, remaining float64, age time.Duration, cost int64) models.StockBatch {
	return models.StockBatch{
		ID:           id,
		BatchNumber:  fmt.Sprintf("B-%d", id),
		InitialQty:   remaining,
		RemainingQty: remaining,
		CostPrice:    decimal.NewFromInt(cost),
		CreatedAt:    t0.Add(age),
	}
}

func TestAllocateOldestFirst(t *testing.T) {
	// newer batch listed first on purpose
	batches := []models.StockBatch{
		batch(2, 10, time.Hour, 120),
		batch(1, 10, 0, 100),
	}

	allocs, err := Allocate(batches, 15)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	assert.Equal(t, uint(1), allocs[0].BatchID)
	assert.Equal(t, 10.0, allocs[0].Quantity)
	assert.Equal(t, uint(2), allocs[1].BatchID)
	assert.Equal(t, 5.0, allocs[1].Quantity)

	// input untouched
	assert.Equal(t, 10.0, batches[0].RemainingQty)
	assert.Equal(t, 10.0, batches[1].RemainingQty)
}

func TestAllocateTieBreaksOnID(t *testing.T) {
	batches := []models.StockBatch{batch(7, 4, 0, 1), batch(3, 4, 0, 1)}

	allocs, err := Allocate(batches, 2)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, uint(3), allocs[0].BatchID)
}

func TestAllocateSkipsEmptyBatches(t *testing.T) {
	batches := []models.StockBatch{batch(1, 0, 0, 1), batch(2, 6, time.Minute, 1)}

	allocs, err := Allocate(batches, 6)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, uint(2), allocs[0].BatchID)
}

func TestAllocateInsufficient(t *testing.T) {
	batches := []models.StockBatch{batch(1, 3, 0, 1), batch(2, 4, time.Minute, 1)}

	allocs, err := Allocate(batches, 7.5)
	assert.Nil(t, allocs)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock))
}

func TestAllocateRejectsNonPositive(t *testing.T) {
	_, err := Allocate(nil, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = Allocate(nil, -1)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAllocateFractional(t *testing.T) {
	batches := []models.StockBatch{batch(1, 0.3, 0, 1), batch(2, 0.3, time.Minute, 1)}

	allocs, err := Allocate(batches, 0.4)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, 0.3, allocs[0].Quantity)
	assert.Equal(t, 0.1, allocs[1].Quantity)
}

func TestWeightedCost(t *testing.T) {
	allocs := []Allocation{
		{Quantity: 10, CostPrice: decimal.NewFromInt(100)},
		{Quantity: 5, CostPrice: decimal.NewFromInt(130)},
	}
	assert.Equal(t, "110", WeightedCost(allocs).String())
	assert.True(t, WeightedCost(nil).IsZero())
}
