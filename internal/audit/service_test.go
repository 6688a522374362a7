package audit

import (
	"strings"
	"testing"

	"osp-stores-backend/internal/database/dbtest"
	"osp-stores-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLogAndFilter(t *testing.T) {
	db := dbtest.Open(t)
	store := dbtest.Store(t, db, "Galle Sub", models.StoreTypeSub)
	actor := models.Actor{ID: 4, Name: "Nimal", Role: models.RoleStoresManager}

	require.NoError(t, WriteLog(db, LogOptions{
		StoreID:     &store.ID,
		Actor:       actor,
		EntityType:  EntityWastage,
		EntityID:    11,
		Action:      models.AuditActionCreate,
		Description: strings.Repeat("x", 300),
		After:       map[string]any{"quantity": 2.5},
	}))
	require.NoError(t, WriteLog(db, LogOptions{
		Actor:      actor,
		EntityType: EntityItem,
		EntityID:   3,
		Action:     models.AuditActionUpdate,
	}))

	logs, err := List(db, Filter{StoreID: &store.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, EntityWastage, logs[0].EntityType)
	assert.Equal(t, "null", logs[0].BeforeData)
	assert.JSONEq(t, `{"quantity":2.5}`, logs[0].AfterData)
	assert.Len(t, logs[0].Description, 255)
	assert.Equal(t, models.RoleStoresManager, logs[0].UserRole)

	logs, err = List(db, Filter{EntityType: EntityItem, EntityID: 3})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = List(db, Filter{UserID: 4})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
