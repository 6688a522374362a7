package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"osp-stores-backend/internal/apperr"
	"osp-stores-backend/internal/catalog"
	"osp-stores-backend/internal/database/dbtest"
	"osp-stores-backend/internal/ledger"
	"osp-stores-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	ledger *ledger.Ledger
	main   models.Store
	sub    models.Store
	cable  models.Item
	pole   models.Item
	actors map[models.UserRole]models.Actor
}

func newFixture(t *testing.T, policy Policy) *fixture {
	db := dbtest.Open(t)
	l := ledger.NewWithClock(tickingClock())
	f := &fixture{
		db:     db,
		ledger: l,
		svc:    NewService(db, l, catalog.NewService(db, nil), policy),
		main:   dbtest.Store(t, db, "Colombo Main", models.StoreTypeMain),
		sub:    dbtest.Store(t, db, "Kandy Sub", models.StoreTypeSub),
		cable:  dbtest.Item(t, db, "CAB-DW-01", true),
		pole:   dbtest.Item(t, db, "POLE-8M", false),
		actors: map[models.UserRole]models.Actor{},
	}
	for _, role := range []models.UserRole{
		models.RoleRequester, models.RoleAreaManager, models.RoleStoresManager,
		models.RoleOSPManager, models.RoleStoresAssistant, models.RoleProcurementOfficer,
	} {
		u := dbtest.User(t, db, string(role)+"@osp.test", role, nil)
		f.actors[role] = u.Actor()
	}
	sso := dbtest.User(t, db, "sso@osp.test", models.RoleSubStoreOfficer, &f.sub.ID)
	f.actors[models.RoleSubStoreOfficer] = sso.Actor()
	return f
}

func (f *fixture) stock(t *testing.T, store models.Store, item models.Item, qty float64, cost int64) {
	t.Helper()
	_, err := f.ledger.Receive(f.db, ledger.ReceiveInput{
		StoreID:   store.ID,
		ItemID:    item.ID,
		Quantity:  qty,
		CostPrice: decimal.NewFromInt(cost),
		Source:    models.BatchSourceGRN,
		SourceRef: "GRN-SEED",
	})
	require.NoError(t, err)
}

func (f *fixture) internalRequest(t *testing.T, lines ...CreateLineInput) *models.StockRequest {
	t.Helper()
	req, err := f.svc.CreateRequest(context.Background(), f.actors[models.RoleRequester], CreateRequestInput{
		FromStoreID: f.main.ID,
		ToStoreID:   &f.sub.ID,
		SourceType:  models.SourceMainStore,
		Purpose:     "FTTH rollout",
		Lines:       lines,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) act(role models.UserRole, req *models.StockRequest, action Action, alloc ...LineQuantity) (*models.StockRequest, error) {
	return f.svc.ProcessAction(context.Background(), f.actors[role], req.ID, ActionInput{Action: action, Allocation: alloc})
}

func (f *fixture) mustAct(t *testing.T, role models.UserRole, req *models.StockRequest, action Action, alloc ...LineQuantity) *models.StockRequest {
	t.Helper()
	out, err := f.act(role, req, action, alloc...)
	require.NoError(t, err)
	return out
}

func (f *fixture) onHand(t *testing.T, store models.Store, item models.Item) float64 {
	t.Helper()
	rec, err := ledger.Reconcile(f.db, store.ID, item.ID)
	require.NoError(t, err)
	assert.True(t, rec.InBalance)
	return rec.BatchTotal
}

func TestInternalRequestHappyPath(t *testing.T) {
	f := newFixture(t, Policy{})
	f.stock(t, f.main, f.cable, 100, 10)

	req := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 30})
	assert.Regexp(t, `^REQ-\d{8}-[0-9A-F]{8}$`, req.RequestNr)
	assert.Equal(t, models.StageARMApproval, req.WorkflowStage)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Nil(t, req.ProcurementStatus)
	lineID := req.Lines[0].ID

	req = f.mustAct(t, models.RoleAreaManager, req, ActionARMApprove)
	req = f.mustAct(t, models.RoleStoresManager, req, ActionStoresManagerApprove, LineQuantity{LineID: lineID, Quantity: f64(25)})
	req = f.mustAct(t, models.RoleOSPManager, req, ActionOSPManagerApprove)
	assert.Equal(t, models.StageMainStoreRelease, req.WorkflowStage)
	assert.Equal(t, models.RequestStatusApproved, req.Status)
	assert.Equal(t, 25.0, *req.Lines[0].ApprovedQty)

	req = f.mustAct(t, models.RoleStoresAssistant, req, ActionMainStoreRelease)
	assert.Equal(t, models.StageSubStoreReceive, req.WorkflowStage)
	assert.Equal(t, 25.0, *req.Lines[0].IssuedQty)
	assert.Equal(t, 75.0, f.onHand(t, f.main, f.cable))

	req = f.mustAct(t, models.RoleSubStoreOfficer, req, ActionSubStoreReceive)
	assert.Equal(t, models.StageCompleted, req.WorkflowStage)
	assert.Equal(t, models.RequestStatusCompleted, req.Status)
	assert.Equal(t, 25.0, *req.Lines[0].ReceivedQty)
	assert.Equal(t, 25.0, f.onHand(t, f.sub, f.cable))
	assert.Equal(t, 6, req.Version)

	require.Len(t, req.History, 5)
	assert.Equal(t, string(ActionARMApprove), req.History[0].Action)
	assert.Equal(t, models.StageSubStoreReceive, req.History[4].FromStage)
	assert.Equal(t, models.StageCompleted, req.History[4].ToStage)

	batches, err := ledger.Batches(f.db, f.sub.ID, f.cable.ID, false)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.BatchSourceTransfer, batches[0].SourceType)
	assert.Equal(t, req.RequestNr, batches[0].SourceRef)
	assert.True(t, decimal.NewFromInt(10).Equal(batches[0].CostPrice))

	var audits int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", "stock_request", req.ID).Count(&audits).Error)
	assert.Equal(t, int64(6), audits)

	_, err = f.act(models.RoleSubStoreOfficer, req, ActionSubStoreReceive)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "completed requests accept nothing")
}

func TestReleaseInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t, Policy{})
	f.stock(t, f.main, f.cable, 10, 10)
	f.stock(t, f.main, f.pole, 50, 200)

	req := f.internalRequest(t,
		CreateLineInput{ItemID: f.pole.ID, Quantity: 5},
		CreateLineInput{ItemID: f.cable.ID, Quantity: 30},
	)
	req = f.mustAct(t, models.RoleAreaManager, req, ActionARMApprove)
	req = f.mustAct(t, models.RoleStoresManager, req, ActionStoresManagerApprove)
	req = f.mustAct(t, models.RoleOSPManager, req, ActionOSPManagerApprove)

	_, err := f.act(models.RoleStoresAssistant, req, ActionMainStoreRelease)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientStock), "got %v", err)

	after, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageMainStoreRelease, after.WorkflowStage)
	assert.Equal(t, req.Version, after.Version)
	assert.Len(t, after.History, 3)
	for _, l := range after.Lines {
		assert.Nil(t, l.IssuedQty)
	}
	assert.Equal(t, 50.0, f.onHand(t, f.main, f.pole), "first line rolled back")
	assert.Equal(t, 10.0, f.onHand(t, f.main, f.cable))

	consumed, err := ledger.Consumptions(f.db, ledger.RefRequestRelease, req.ID)
	require.NoError(t, err)
	assert.Empty(t, consumed)
}

func TestRoleGatingAndRejection(t *testing.T) {
	f := newFixture(t, Policy{})
	req := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 3})

	_, err := f.act(models.RoleStoresManager, req, ActionARMApprove)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	unchanged, err := f.svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unchanged.Version)
	assert.Empty(t, unchanged.History)

	req = f.mustAct(t, models.RoleAreaManager, req, ActionARMReject)
	assert.Equal(t, models.StageRejected, req.WorkflowStage)
	assert.Equal(t, models.RequestStatusRejected, req.Status)

	_, err = f.act(models.RoleStoresManager, req, ActionStoresManagerApprove)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestExpectedVersionMismatch(t *testing.T) {
	f := newFixture(t, Policy{})
	req := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 3})
	stale := req.Version

	f.mustAct(t, models.RoleAreaManager, req, ActionARMApprove)

	_, err := f.svc.ProcessAction(context.Background(), f.actors[models.RoleStoresManager], req.ID, ActionInput{
		Action:          ActionStoresManagerApprove,
		ExpectedVersion: &stale,
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestReceiveInheritsWeightedCost(t *testing.T) {
	f := newFixture(t, Policy{})
	f.stock(t, f.main, f.cable, 10, 10)
	f.stock(t, f.main, f.cable, 10, 20)

	req := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 15})
	for _, step := range []struct {
		role   models.UserRole
		action Action
	}{
		{models.RoleAreaManager, ActionARMApprove},
		{models.RoleStoresManager, ActionStoresManagerApprove},
		{models.RoleOSPManager, ActionOSPManagerApprove},
		{models.RoleStoresAssistant, ActionMainStoreRelease},
	} {
		req = f.mustAct(t, step.role, req, step.action)
	}

	main, err := ledger.Batches(f.db, f.main.ID, f.cable.ID, true)
	require.NoError(t, err)
	require.Len(t, main, 2)
	assert.Equal(t, 0.0, main[0].RemainingQty, "oldest batch drained first")
	assert.Equal(t, 5.0, main[1].RemainingQty)

	line := req.Lines[0].ID
	_, err = f.act(models.RoleSubStoreOfficer, req, ActionSubStoreReceive, LineQuantity{LineID: line, Quantity: f64(16)})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "cannot receive more than issued")

	req = f.mustAct(t, models.RoleSubStoreOfficer, req, ActionSubStoreReceive)
	sub, err := ledger.Batches(f.db, f.sub.ID, f.cable.ID, false)
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "13.33", sub[0].CostPrice.StringFixed(2))
	assert.Equal(t, 15.0, sub[0].RemainingQty)
}

func TestReceiveByOtherStoreOfficerRefused(t *testing.T) {
	f := newFixture(t, Policy{})
	f.stock(t, f.main, f.cable, 10, 1)
	other := dbtest.Store(t, f.db, "Galle Sub", models.StoreTypeSub)
	stranger := dbtest.User(t, f.db, "galle@osp.test", models.RoleSubStoreOfficer, &other.ID).Actor()

	req := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 4})
	for _, step := range []struct {
		role   models.UserRole
		action Action
	}{
		{models.RoleAreaManager, ActionARMApprove},
		{models.RoleStoresManager, ActionStoresManagerApprove},
		{models.RoleOSPManager, ActionOSPManagerApprove},
		{models.RoleStoresAssistant, ActionMainStoreRelease},
	} {
		req = f.mustAct(t, step.role, req, step.action)
	}

	_, err := f.svc.ProcessAction(context.Background(), stranger, req.ID, ActionInput{Action: ActionSubStoreReceive})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	assert.Equal(t, 0.0, f.onHand(t, f.sub, f.cable))
}

func TestZeroApprovedLineIsSkippedAtRelease(t *testing.T) {
	f := newFixture(t, Policy{})
	f.stock(t, f.main, f.cable, 10, 1)

	req := f.internalRequest(t,
		CreateLineInput{ItemID: f.cable.ID, Quantity: 4},
		CreateLineInput{ItemID: f.pole.ID, Quantity: 2},
	)
	req = f.mustAct(t, models.RoleAreaManager, req, ActionARMApprove,
		LineQuantity{LineID: req.Lines[0].ID}, LineQuantity{LineID: req.Lines[1].ID, Quantity: f64(0)})
	req = f.mustAct(t, models.RoleStoresManager, req, ActionStoresManagerApprove)
	req = f.mustAct(t, models.RoleOSPManager, req, ActionOSPManagerApprove)
	req = f.mustAct(t, models.RoleStoresAssistant, req, ActionMainStoreRelease)

	assert.Equal(t, 4.0, *req.Lines[0].IssuedQty)
	assert.Equal(t, 0.0, *req.Lines[1].IssuedQty)
	assert.Equal(t, 6.0, f.onHand(t, f.main, f.cable))
}

func TestExternalRequestProcurementFlow(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	req, err := f.svc.CreateRequest(ctx, f.actors[models.RoleRequester], CreateRequestInput{
		FromStoreID: f.main.ID,
		SourceType:  models.SourceSLT,
		IRNumber:    "IR-2231",
		Priority:    models.PriorityHigh,
		Lines:       []CreateLineInput{{ItemID: f.cable.ID, Quantity: 500}},
	})
	require.NoError(t, err)
	require.NotNil(t, req.ProcurementStatus)
	assert.Equal(t, models.ProcurementPending, *req.ProcurementStatus)

	req = f.mustAct(t, models.RoleAreaManager, req, ActionARMApprove)
	req = f.mustAct(t, models.RoleStoresManager, req, ActionStoresManagerApprove)
	req = f.mustAct(t, models.RoleOSPManager, req, ActionOSPManagerApprove)
	assert.Equal(t, models.StageProcurement, req.WorkflowStage)

	officer := f.actors[models.RoleProcurementOfficer]
	_, err = f.svc.ProcessAction(ctx, officer, req.ID, ActionInput{Action: ActionPOSent})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	delivery := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	req, err = f.svc.ProcessAction(ctx, officer, req.ID, ActionInput{
		Action:        ActionCreatePO,
		PurchaseOrder: PurchaseOrder{PONumber: "PO-7781", Vendor: "Lanka Cables", ExpectedDelivery: &delivery},
	})
	require.NoError(t, err)
	assert.Equal(t, "PO-7781", req.PONumber)
	assert.Equal(t, models.ProcurementPOCreated, *req.ProcurementStatus)

	for _, a := range []Action{ActionPOSent, ActionPOConfirmed, ActionMarkReadyForGRN} {
		req, err = f.svc.ProcessAction(ctx, officer, req.ID, ActionInput{Action: a})
		require.NoError(t, err, a)
	}
	assert.Equal(t, models.StageGRNPending, req.WorkflowStage)
	assert.Equal(t, models.ProcurementCompleted, *req.ProcurementStatus)
	assert.Len(t, req.History, 7)

	_, err = f.act(models.RoleStoresAssistant, req, ActionMainStoreRelease)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()
	requester := f.actors[models.RoleRequester]
	otherMain := dbtest.Store(t, f.db, "Jaffna Main", models.StoreTypeMain)
	one := []CreateLineInput{{ItemID: f.cable.ID, Quantity: 1}}

	cases := []struct {
		name string
		in   CreateRequestInput
		kind apperr.Kind
	}{
		{"no lines", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceMainStore}, apperr.KindValidation},
		{"internal with SLT source", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceSLT, Lines: one}, apperr.KindValidation},
		{"same store", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.main.ID, SourceType: models.SourceMainStore, Lines: one}, apperr.KindValidation},
		{"from sub store", CreateRequestInput{FromStoreID: f.sub.ID, ToStoreID: &f.main.ID, SourceType: models.SourceMainStore, Lines: one}, apperr.KindValidation},
		{"to main store", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &otherMain.ID, SourceType: models.SourceMainStore, Lines: one}, apperr.KindValidation},
		{"external main-store source", CreateRequestInput{FromStoreID: f.main.ID, SourceType: models.SourceMainStore, Lines: one}, apperr.KindValidation},
		{"sub store SLT", CreateRequestInput{FromStoreID: f.sub.ID, SourceType: models.SourceSLT, Lines: one}, apperr.KindValidation},
		{"ir number without SLT", CreateRequestInput{FromStoreID: f.main.ID, SourceType: models.SourceLocalPurchase, IRNumber: "IR-1", Lines: one}, apperr.KindValidation},
		{"zero quantity", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceMainStore,
			Lines: []CreateLineInput{{ItemID: f.cable.ID, Quantity: 0}}}, apperr.KindValidation},
		{"duplicate item", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceMainStore,
			Lines: []CreateLineInput{{ItemID: f.cable.ID, Quantity: 1}, {ItemID: f.cable.ID, Quantity: 2}}}, apperr.KindValidation},
		{"bad priority", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceMainStore, Priority: "ASAP", Lines: one}, apperr.KindValidation},
		{"unknown item", CreateRequestInput{FromStoreID: f.main.ID, ToStoreID: &f.sub.ID, SourceType: models.SourceMainStore,
			Lines: []CreateLineInput{{ItemID: 4040, Quantity: 1}}}, apperr.KindNotFound},
		{"unknown store", CreateRequestInput{FromStoreID: 4040, SourceType: models.SourceLocalPurchase, Lines: one}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateRequest(ctx, requester, tc.in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}

	// a sub store may buy locally
	req, err := f.svc.CreateRequest(ctx, requester, CreateRequestInput{
		FromStoreID: f.sub.ID, SourceType: models.SourceLocalPurchase, Lines: one,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, req.Priority)

	var n int64
	require.NoError(t, f.db.Model(&models.StockRequest{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestQueueAndList(t *testing.T) {
	f := newFixture(t, Policy{})
	ctx := context.Background()

	first := f.internalRequest(t, CreateLineInput{ItemID: f.cable.ID, Quantity: 1})
	f.internalRequest(t, CreateLineInput{ItemID: f.pole.ID, Quantity: 1})
	f.mustAct(t, models.RoleAreaManager, first, ActionARMApprove)

	arm, err := f.svc.Queue(ctx, f.actors[models.RoleAreaManager], 0, 0)
	require.NoError(t, err)
	assert.Len(t, arm, 1)

	sm, err := f.svc.Queue(ctx, f.actors[models.RoleStoresManager], 0, 0)
	require.NoError(t, err)
	require.Len(t, sm, 1)
	assert.Equal(t, first.ID, sm[0].ID)

	none, err := f.svc.Queue(ctx, f.actors[models.RoleRequester], 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := f.svc.List(ctx, ListFilter{StoreID: f.sub.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.List(ctx, ListFilter{Stage: models.StageARMApproval})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.Get(ctx, 9999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
