package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"osp-stores-backend/internal/adjustment"
	"osp-stores-backend/internal/catalog"
	"osp-stores-backend/internal/config"
	"osp-stores-backend/internal/database/dbtest"
	"osp-stores-backend/internal/grn"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/logger"
	"osp-stores-backend/internal/models"
	"osp-stores-backend/internal/workflow"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type env struct {
	app    *fiber.App
	db     *gorm.DB
	ledger *ledger.Ledger
	main   models.Store
	sub    models.Store
	cable  models.Item
	tokens map[models.UserRole]string
}

func setup(t *testing.T) *env {
	logger.Logger = zerolog.Nop()

	db := dbtest.Open(t)
	l := ledger.New()
	cat := catalog.NewService(db, nil)
	cfg := &config.Config{
		AppEnv:      "test",
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		JWTTTL:      time.Hour,
		CORSOrigins: []string{"http://localhost:5173"},
	}

	e := &env{
		db:     db,
		ledger: l,
		main:   dbtest.Store(t, db, "Colombo Main", models.StoreTypeMain),
		sub:    dbtest.Store(t, db, "Kandy Sub", models.StoreTypeSub),
		cable:  dbtest.Item(t, db, "CAB-DW-01", true),
		tokens: map[models.UserRole]string{},
	}
	e.app = New(Deps{
		Config:     cfg,
		DB:         db,
		Catalog:    cat,
		Workflow:   workflow.NewService(db, l, cat, workflow.Policy{}),
		GRN:        grn.NewService(db, l, cat),
		Adjustment: adjustment.NewService(db, l, cat),
	})

	for _, role := range []models.UserRole{
		models.RoleSuperAdmin, models.RoleRequester, models.RoleAreaManager,
		models.RoleStoresManager, models.RoleOSPManager, models.RoleStoresAssistant,
		models.RoleSubStoreOfficer,
	} {
		var storeID *uint
		if role == models.RoleSubStoreOfficer {
			storeID = &e.sub.ID
		}
		u := dbtest.User(t, db, strings.ToLower(string(role))+"@osp.test", role, storeID)
		e.tokens[role] = e.login(t, u.Email)
	}
	return e
}

func (e *env) call(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *env) login(t *testing.T, email string) string {
	t.Helper()
	status, out := e.call(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": email, "password": "secret-pass",
	})
	require.Equal(t, fiber.StatusOK, status, out.Error)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &data))
	return data.Token
}

func (e *env) act(t *testing.T, role models.UserRole, id uint, action workflow.Action) (int, envelope) {
	t.Helper()
	return e.call(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/actions", id), e.tokens[role],
		fiber.Map{"action": action})
}

func (e *env) stock(t *testing.T, storeID uint) map[uint]float64 {
	t.Helper()
	status, out := e.call(t, http.MethodGet, fmt.Sprintf("/api/stores/%d/stock", storeID), e.tokens[models.RoleStoresManager], nil)
	require.Equal(t, fiber.StatusOK, status)

	var rows []catalog.StockLevelResponse
	require.NoError(t, json.Unmarshal(out.Data, &rows))
	res := map[uint]float64{}
	for _, r := range rows {
		res[r.ItemID] = r.Quantity
	}
	return res
}

func TestHealthAndAuthGate(t *testing.T) {
	e := setup(t)

	status, out := e.call(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, out.Success)

	status, _ = e.call(t, http.MethodGet, "/api/items", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out = e.call(t, http.MethodGet, "/api/admin/users", e.tokens[models.RoleRequester], nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "authorization", out.Kind)

	status, _ = e.call(t, http.MethodGet, "/api/admin/users", e.tokens[models.RoleSuperAdmin], nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestInternalRequestOverHTTP(t *testing.T) {
	e := setup(t)
	_, err := e.ledger.Receive(e.db, ledger.ReceiveInput{
		StoreID:   e.main.ID,
		ItemID:    e.cable.ID,
		Quantity:  100,
		CostPrice: decimal.NewFromInt(10),
		Source:    models.BatchSourceGRN,
		SourceRef: "OPENING",
	})
	require.NoError(t, err)

	status, out := e.call(t, http.MethodPost, "/api/requests", e.tokens[models.RoleRequester], fiber.Map{
		"from_store_id": e.main.ID,
		"to_store_id":   e.sub.ID,
		"source_type":   models.SourceMainStore,
		"purpose":       "FTTH rollout",
		"items":         []fiber.Map{{"item_id": e.cable.ID, "quantity": 40}},
	})
	require.Equal(t, fiber.StatusCreated, status, out.Error)

	var created workflow.RequestResponse
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.Equal(t, models.StageARMApproval, created.WorkflowStage)

	// wrong role is refused before anything moves
	status, out = e.act(t, models.RoleStoresManager, created.ID, workflow.ActionARMApprove)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "authorization", out.Kind)

	for _, step := range []struct {
		role   models.UserRole
		action workflow.Action
	}{
		{models.RoleAreaManager, workflow.ActionARMApprove},
		{models.RoleStoresManager, workflow.ActionStoresManagerApprove},
		{models.RoleOSPManager, workflow.ActionOSPManagerApprove},
		{models.RoleStoresAssistant, workflow.ActionMainStoreRelease},
		{models.RoleSubStoreOfficer, workflow.ActionSubStoreReceive},
	} {
		status, out = e.act(t, step.role, created.ID, step.action)
		require.Equal(t, fiber.StatusOK, status, "%s: %s", step.action, out.Error)
	}

	status, out = e.call(t, http.MethodGet, fmt.Sprintf("/api/requests/%d", created.ID), e.tokens[models.RoleRequester], nil)
	require.Equal(t, fiber.StatusOK, status)
	var done workflow.RequestResponse
	require.NoError(t, json.Unmarshal(out.Data, &done))
	assert.Equal(t, models.StageCompleted, done.WorkflowStage)
	assert.Equal(t, models.RequestStatusCompleted, done.Status)
	assert.Empty(t, done.AvailableActions)

	assert.InDelta(t, 60, e.stock(t, e.main.ID)[e.cable.ID], 0.0001)
	assert.InDelta(t, 40, e.stock(t, e.sub.ID)[e.cable.ID], 0.0001)

	status, _ = e.act(t, models.RoleSubStoreOfficer, created.ID, workflow.ActionSubStoreReceive)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestReleaseWithoutStockIsUnprocessable(t *testing.T) {
	e := setup(t)

	status, out := e.call(t, http.MethodPost, "/api/requests", e.tokens[models.RoleRequester], fiber.Map{
		"from_store_id": e.main.ID,
		"to_store_id":   e.sub.ID,
		"source_type":   models.SourceMainStore,
		"items":         []fiber.Map{{"item_id": e.cable.ID, "quantity": 5}},
	})
	require.Equal(t, fiber.StatusCreated, status, out.Error)
	var created workflow.RequestResponse
	require.NoError(t, json.Unmarshal(out.Data, &created))

	e.act(t, models.RoleAreaManager, created.ID, workflow.ActionARMApprove)
	e.act(t, models.RoleStoresManager, created.ID, workflow.ActionStoresManagerApprove)
	e.act(t, models.RoleOSPManager, created.ID, workflow.ActionOSPManagerApprove)

	status, out = e.act(t, models.RoleStoresAssistant, created.ID, workflow.ActionMainStoreRelease)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_stock", out.Kind)
	assert.False(t, out.Success)

	var req models.StockRequest
	require.NoError(t, e.db.First(&req, created.ID).Error)
	assert.Equal(t, models.StageMainStoreRelease, req.WorkflowStage)
}

func TestCatalogEditorsOnly(t *testing.T) {
	e := setup(t)
	item := fiber.Map{"code": "ODF-24", "name": "ODF 24 port", "unit": "nos", "category": "odf", "type": models.ItemTypeCompany}

	status, _ := e.call(t, http.MethodPost, "/api/items", e.tokens[models.RoleRequester], item)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, out := e.call(t, http.MethodPost, "/api/items", e.tokens[models.RoleStoresManager], item)
	assert.Equal(t, fiber.StatusCreated, status, out.Error)

	status, out = e.call(t, http.MethodPost, "/api/items", e.tokens[models.RoleStoresManager], item)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "conflict", out.Kind)
}

func TestListFiltersRejectBadStoreID(t *testing.T) {
	e := setup(t)
	token := e.tokens[models.RoleStoresManager]

	for _, path := range []string{"/api/requests", "/api/grns", "/api/mrns", "/api/items/low-stock"} {
		status, out := e.call(t, http.MethodGet, path+"?store_id=-1", token, nil)
		assert.Equal(t, fiber.StatusBadRequest, status, path)
		assert.Equal(t, "validation", out.Kind, path)

		status, _ = e.call(t, http.MethodGet, fmt.Sprintf("%s?store_id=%d", path, e.main.ID), token, nil)
		assert.Equal(t, fiber.StatusOK, status, path)
	}
}
