package catalog

import (
	"context"
	"sync"
	"testing"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/database/dbtest"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = models.Actor{ID: 1, Name: "admin", Role: models.RoleSuperAdmin}

type memoryCache struct {
	mu    sync.Mutex
	items map[uint]models.Item
	hits  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[uint]models.Item{}}
}

func (m *memoryCache) GetItem(_ context.Context, id uint) (*models.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if ok {
		m.hits++
	}
	return &it, ok, nil
}

func (m *memoryCache) SetItem(_ context.Context, it *models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = *it
	return nil
}

func (m *memoryCache) InvalidateItem(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func TestCreateItemNormalisesAndRejectsDuplicates(t *testing.T) {
	svc := NewService(dbtest.Open(t), nil)
	ctx := context.Background()

	it, err := svc.CreateItem(ctx, admin, ItemInput{Code: " cab-dw-01 ", Name: "Drop wire", Unit: "m"})
	require.NoError(t, err)
	assert.Equal(t, "CAB-DW-01", it.Code)
	assert.Equal(t, models.ItemTypeCompany, it.Type)
	assert.False(t, it.IsWastageAllowed)

	_, err = svc.CreateItem(ctx, admin, ItemInput{Code: "CAB-DW-01", Name: "Again", Unit: "m"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.CreateItem(ctx, admin, ItemInput{Code: "X", Name: "No unit"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.CreateItem(ctx, admin, ItemInput{Code: "Y", Name: "Bad", Unit: "m", Type: "OTHER"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestUpdateItemKeepsCodeAndInvalidatesCache(t *testing.T) {
	db := dbtest.Open(t)
	cache := newMemoryCache()
	svc := NewService(db, cache)
	ctx := context.Background()

	it, err := svc.CreateItem(ctx, admin, ItemInput{Code: "POLE-8M", Name: "Concrete pole", Unit: "nos"})
	require.NoError(t, err)

	_, err = svc.GetItem(ctx, it.ID)
	require.NoError(t, err)
	_, err = svc.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	other := "POLE-9M"
	_, err = svc.UpdateItem(ctx, admin, it.ID, ItemPatch{Code: &other})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	name := "Concrete pole 8m"
	allowed := true
	updated, err := svc.UpdateItem(ctx, admin, it.ID, ItemPatch{Name: &name, IsWastageAllowed: &allowed})
	require.NoError(t, err)
	assert.Equal(t, "POLE-8M", updated.Code)
	assert.True(t, updated.IsWastageAllowed)

	fresh, err := svc.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, name, fresh.Name, "stale cache entry served after update")
}

func TestGetItemNotFound(t *testing.T) {
	svc := NewService(dbtest.Open(t), nil)
	_, err := svc.GetItem(context.Background(), 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = svc.GetStore(context.Background(), 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteItemBlockedByStock(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	store := dbtest.Store(t, db, "Main Store", models.StoreTypeMain)
	stocked := dbtest.Item(t, db, "CAB-01", false)
	unused := dbtest.Item(t, db, "CAB-02", false)

	_, err := ledger.New().Receive(db, ledger.ReceiveInput{
		StoreID: store.ID, ItemID: stocked.ID, Quantity: 5,
		CostPrice: decimal.NewFromInt(3), Source: models.BatchSourceGRN,
	})
	require.NoError(t, err)

	err = svc.DeleteItem(ctx, admin, stocked.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	require.NoError(t, svc.DeleteItem(ctx, admin, unused.ID))
	_, err = svc.GetItem(ctx, unused.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateStore(t *testing.T) {
	svc := NewService(dbtest.Open(t), nil)
	ctx := context.Background()

	s, err := svc.CreateStore(ctx, admin, StoreInput{Name: "Kandy Sub Store", Type: models.StoreTypeSub})
	require.NoError(t, err)
	assert.NotZero(t, s.ID)

	_, err = svc.CreateStore(ctx, admin, StoreInput{Name: "Kandy Sub Store", Type: models.StoreTypeSub})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = svc.CreateStore(ctx, admin, StoreInput{Name: "Nowhere", Type: "REGIONAL"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	subs, err := svc.ListStores(ctx, models.StoreTypeSub)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestLowStock(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, nil)
	ctx := context.Background()
	l := ledger.New()
	store := dbtest.Store(t, db, "Main Store", models.StoreTypeMain)

	low := dbtest.Item(t, db, "LOW", false)
	ok := dbtest.Item(t, db, "OK", false)
	untracked := dbtest.Item(t, db, "UNTRACKED", false)
	require.NoError(t, db.Model(&low).Update("min_level", 10).Error)
	require.NoError(t, db.Model(&ok).Update("min_level", 10).Error)

	for _, r := range []struct {
		item models.Item
		qty  float64
	}{{low, 4}, {ok, 12}, {untracked, 1}} {
		_, err := l.Receive(db, ledger.ReceiveInput{
			StoreID: store.ID, ItemID: r.item.ID, Quantity: r.qty,
			CostPrice: decimal.Zero, Source: models.BatchSourceGRN,
		})
		require.NoError(t, err)
	}

	rows, err := svc.LowStock(ctx, store.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "LOW", rows[0].ItemCode)
	assert.Equal(t, 4.0, rows[0].Quantity)
	assert.Equal(t, 10.0, rows[0].MinLevel)
	assert.Equal(t, "Main Store", rows[0].StoreName)
}

func TestBatchesReportsReconciliation(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, nil)
	store := dbtest.Store(t, db, "Main Store", models.StoreTypeMain)
	item := dbtest.Item(t, db, "CAB-01", false)

	_, err := ledger.New().Receive(db, ledger.ReceiveInput{
		StoreID: store.ID, ItemID: item.ID, Quantity: 7.5,
		CostPrice: decimal.NewFromInt(2), Source: models.BatchSourceGRN,
	})
	require.NoError(t, err)

	batches, rec, err := svc.Batches(context.Background(), store.ID, item.ID, false)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.True(t, rec.InBalance)
	assert.Equal(t, 7.5, rec.BatchTotal)

	_, _, err = svc.Batches(context.Background(), store.ID, 404, false)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
