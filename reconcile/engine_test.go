package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/omnipos/database"
	"github.com/yeremiapane/omnipos/ledger"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/vclock"
	"github.com/yeremiapane/omnipos/workflow"
)

const orderX = "6f9a2c1e-8b3d-4e57-a1c2-9d0e7f6b5a43"

var (
	t0      = time.Date(2026, 6, 12, 19, 0, 0, 0, time.UTC)
	cashier = models.Principal{Subject: "staff-a", Role: models.RoleTill, TenantID: "tenant-1"}
)

type recordingSink struct {
	mu     sync.Mutex
	events []workflow.Event
	err    error
}

func (s *recordingSink) HandleEvents(_ context.Context, events []workflow.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

// drain returns the statuses entered since the last call.
func (s *recordingSink) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, string(e.To))
	}
	s.events = nil
	return out
}

func setupEngine(t *testing.T) (*Engine, *recordingSink) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	sink := &recordingSink{}
	e := NewEngine(ledger.New(db), sink, "server")
	e.Now = func() time.Time { return t0.Add(time.Hour) }
	return e, sink
}

func newOrder(id string, clock vclock.Clock, at time.Time) models.Order {
	table := "T7"
	return models.Order{
		ID:           id,
		TenantID:     "tenant-1",
		TableID:      &table,
		CustomerName: "Budi",
		Items: []models.OrderItem{
			{ProductID: "sate", Name: "Sate Ayam", Quantity: 2, UnitPrice: decimal.RequireFromString("21.00")},
		},
		Subtotal:   decimal.RequireFromString("42.00"),
		FinalTotal: decimal.RequireFromString("42.00"),
		Status:     models.StatusPlaced,
		Clock:      clock,
		CreatedAt:  at,
		UpdatedAt:  at,
		SyncStatus: models.SyncOffline,
	}
}

func TestScenario_TwoDevices(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()
	var trace strings.Builder

	step := func(label string, o models.Order) Outcome {
		out := e.Reconcile(ctx, cashier, o)
		stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
		require.NoError(t, err)
		wire := out.Wire()
		status := wire.Status
		if wire.Reason != "" {
			status += "(" + wire.Reason + ")"
		}
		fmt.Fprintf(&trace, "%s: %s status=%s clock=%s total=%s events=[%s]\n",
			label, status, stored.Status, stored.Clock, stored.FinalTotal.StringFixed(2), strings.Join(sink.drain(), ","))
		return out
	}

	// device A creates X offline
	onA := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	out := step("1 A create", onA)
	assert.Equal(t, Created, out.Result)

	// device B pulls X and sends it to the kitchen
	fetched, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	onB := fetched.Clone()
	onB.Status = models.StatusInKitchen
	onB.Clock = fetched.Clock.Tick("B")
	onB.UpdatedAt = t0.Add(10 * time.Minute)
	out = step("2 B InKitchen", onB)
	assert.Equal(t, Updated, out.Result)

	// device A never saw B's change and cancels its own copy
	cancelled := onA.Clone()
	cancelled.Status = models.StatusCancelled
	cancelled.Clock = onA.Clock.Tick("A")
	cancelled.UpdatedAt = t0.Add(15 * time.Minute)
	require.Equal(t, vclock.Concurrent, cancelled.Clock.Compare(onB.Clock))
	out = step("3 A cancel", cancelled)
	assert.Equal(t, Updated, out.Result)

	// replaying the first snapshot is stale
	out = step("4 A replay", onA)
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonStale, out.Reason)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_devices", []byte(trace.String()))
}

func TestReconcile_ConcurrentStoredWins(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	onA := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	require.Equal(t, Created, e.Reconcile(ctx, cashier, onA).Result)

	onB := onA.Clone()
	onB.Status = models.StatusInKitchen
	onB.Clock = onA.Clock.Tick("B")
	onB.UpdatedAt = t0.Add(10 * time.Minute)
	require.Equal(t, Updated, e.Reconcile(ctx, cashier, onB).Result)
	sink.drain()

	// A cancelled before B's change reached the server, by wall clock
	cancelled := onA.Clone()
	cancelled.Status = models.StatusCancelled
	cancelled.Clock = onA.Clock.Tick("A")
	cancelled.UpdatedAt = t0.Add(5 * time.Minute)
	out := e.Reconcile(ctx, cashier, cancelled)
	assert.Equal(t, Updated, out.Result)

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInKitchen, stored.Status)
	assert.Equal(t, vclock.Clock{"A": 2, "B": 1}, stored.Clock)
	assert.True(t, stored.UpdatedAt.Equal(onB.UpdatedAt))
	assert.Empty(t, sink.drain())
}

func TestReconcile_ConcurrentTieKeepsStored(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	base := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	require.Equal(t, Created, e.Reconcile(ctx, cashier, base).Result)

	at := t0.Add(time.Minute)
	onB := base.Clone()
	onB.FinalTotal = decimal.RequireFromString("40.00")
	onB.Clock = base.Clock.Tick("B")
	onB.UpdatedAt = at
	require.Equal(t, Updated, e.Reconcile(ctx, cashier, onB).Result)

	onC := base.Clone()
	onC.FinalTotal = decimal.RequireFromString("38.00")
	onC.Clock = base.Clock.Tick("C")
	onC.UpdatedAt = at
	require.Equal(t, Updated, e.Reconcile(ctx, cashier, onC).Result)

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, "40.00", stored.FinalTotal.StringFixed(2))
	assert.Equal(t, vclock.Clock{"A": 1, "B": 1, "C": 1}, stored.Clock)
}

func TestReconcile_Idempotent(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	o := newOrder(orderX, vclock.Clock{"A": 2}, t0)
	o.Status = models.StatusInKitchen
	assert.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)
	assert.Equal(t, []string{"InKitchen"}, sink.drain())

	first, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)

	out := e.Reconcile(ctx, cashier, o)
	assert.Equal(t, Updated, out.Result)
	assert.Empty(t, sink.drain(), "replays fire no events")

	second, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Clock, second.Clock)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt))
}

func TestReconcile_CreatePathEvents(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	o := newOrder(uuid.NewString(), vclock.Clock{"A": 3}, t0)
	o.Status = models.StatusReady
	assert.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)
	assert.Equal(t, []string{"InKitchen", "Ready"}, sink.drain())

	paid := newOrder(uuid.NewString(), vclock.Clock{"A": 5}, t0)
	paid.Status = models.StatusPaid
	out := e.Reconcile(ctx, cashier, paid)
	require.Equal(t, Created, out.Result)
	require.NotNil(t, out.Order.PaidAt)
	assert.True(t, out.Order.PaidAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, models.SyncSynchronized, out.Order.SyncStatus)
	sink.drain()

	// a clock that cannot account for every step skips states
	early := newOrder(uuid.NewString(), vclock.Clock{"A": 2}, t0)
	early.Status = models.StatusReady
	out = e.Reconcile(ctx, cashier, early)
	assert.Equal(t, ReasonInvalidTransition, out.Reason)

	born := newOrder(uuid.NewString(), vclock.Clock{"B": 1}, t0)
	born.Status = models.StatusPaid
	out = e.Reconcile(ctx, cashier, born)
	assert.Equal(t, ReasonInvalidTransition, out.Reason)
	_, err := e.Ledger.Get(ctx, cashier.TenantID, born.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, sink.drain())
}

func TestReconcile_UpdateNeverSkipsStates(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	o := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	require.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)

	jump := o.Clone()
	jump.Status = models.StatusReady
	jump.Clock = o.Clock.Tick("A")
	jump.UpdatedAt = t0.Add(time.Minute)
	out := e.Reconcile(ctx, cashier, jump)
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonInvalidTransition, out.Reason)

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaced, stored.Status)
	assert.Empty(t, sink.drain())

	// two offline steps, two ticks
	jump.Clock = jump.Clock.Tick("A")
	out = e.Reconcile(ctx, cashier, jump)
	assert.Equal(t, Updated, out.Result)
	assert.Equal(t, models.StatusReady, out.Order.Status)
	assert.Equal(t, []string{"InKitchen", "Ready"}, sink.drain())
}

func TestReconcile_InvalidTransitionLeavesLedger(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	o := newOrder(orderX, vclock.Clock{"A": 2}, t0)
	o.Status = models.StatusInKitchen
	require.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)
	sink.drain()

	back := o.Clone()
	back.Status = models.StatusPlaced
	back.FinalTotal = decimal.RequireFromString("1.00")
	back.Clock = o.Clock.Tick("A")
	back.UpdatedAt = t0.Add(time.Minute)
	out := e.Reconcile(ctx, cashier, back)
	assert.Equal(t, Rejected, out.Result)
	assert.Equal(t, ReasonInvalidTransition, out.Reason)

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInKitchen, stored.Status)
	assert.Equal(t, "42.00", stored.FinalTotal.StringFixed(2))
	assert.Equal(t, vclock.Clock{"A": 2}, stored.Clock)
	assert.Empty(t, sink.drain())
}

func TestReconcile_Rejections(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	other := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	other.TenantID = "tenant-2"
	out := e.Reconcile(ctx, cashier, other)
	assert.Equal(t, ReasonTenantMismatch, out.Reason)

	blank := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	blank.TenantID = ""
	assert.Equal(t, ReasonTenantMismatch, e.Reconcile(ctx, cashier, blank).Reason)

	badID := newOrder("not-a-uuid", vclock.Clock{"A": 1}, t0)
	out = e.Reconcile(ctx, cashier, badID)
	assert.Equal(t, ReasonInvalid, out.Reason)
	var ve *ValidationError
	require.True(t, errors.As(out.Err, &ve))
	assert.Equal(t, "id", ve.Field)

	negative := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	negative.Discount = decimal.RequireFromString("-1")
	assert.Equal(t, ReasonInvalid, e.Reconcile(ctx, cashier, negative).Reason)

	subCent := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	subCent.FinalTotal = decimal.RequireFromString("42.005")
	out = e.Reconcile(ctx, cashier, subCent)
	assert.Equal(t, ReasonInvalid, out.Reason)
	require.True(t, errors.As(out.Err, &ve))
	assert.Equal(t, "finalTotal", ve.Field)
	_, err := e.Ledger.Get(ctx, cashier.TenantID, subCent.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	fineCents := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	fineCents.Items[0].UnitPrice = decimal.RequireFromString("21.000")
	assert.Equal(t, Created, e.Reconcile(ctx, cashier, fineCents).Result)

	subCentPrice := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	subCentPrice.Items[0].UnitPrice = decimal.RequireFromString("20.999")
	assert.Equal(t, ReasonInvalid, e.Reconcile(ctx, cashier, subCentPrice).Reason)

	unknown := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	unknown.Status = "Delivered"
	assert.Equal(t, ReasonInvalid, e.Reconcile(ctx, cashier, unknown).Reason)

	// same id already used by tenant-2
	taken := newOrder(uuid.NewString(), vclock.Clock{"Z": 1}, t0)
	taken.TenantID = "tenant-2"
	elsewhere := models.Principal{Subject: "staff-z", Role: models.RoleTill, TenantID: "tenant-2"}
	require.Equal(t, Created, e.Reconcile(ctx, elsewhere, taken).Result)
	clash := taken.Clone()
	clash.TenantID = "tenant-1"
	out = e.Reconcile(ctx, cashier, clash)
	assert.Equal(t, ReasonIDConflict, out.Reason)
	assert.Equal(t, models.SyncResult{ID: clash.ID, Status: "Rejected", Reason: "IdConflict"}, out.Wire())
}

func TestReconcileBatch_PreservesOrder(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	good1 := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	bad := newOrder(uuid.NewString(), vclock.Clock{"A": 1}, t0)
	bad.TenantID = "tenant-9"
	good2 := newOrder(uuid.NewString(), vclock.Clock{"A": 2}, t0)

	outs := e.ReconcileBatch(ctx, cashier, []models.Order{good1, bad, good2})
	require.Len(t, outs, 3)
	assert.Equal(t, models.SyncResult{ID: good1.ID, Status: "Synchronized"}, outs[0].Wire())
	assert.Equal(t, models.SyncResult{ID: bad.ID, Status: "Rejected", Reason: "TenantMismatch"}, outs[1].Wire())
	assert.Equal(t, models.SyncResult{ID: good2.ID, Status: "Synchronized"}, outs[2].Wire())

	assert.Empty(t, e.ReconcileBatch(ctx, cashier, nil))
}

func TestTransition(t *testing.T) {
	e, sink := setupEngine(t)
	ctx := context.Background()

	o := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	require.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)

	_, err := e.Transition(ctx, cashier, orderX, models.StatusReady)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Equal(t, ReasonInvalidTransition, ReasonFor(err))

	stored, err := e.Transition(ctx, cashier, orderX, models.StatusInKitchen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInKitchen, stored.Status)
	assert.Equal(t, vclock.Clock{"A": 1, "server": 1}, stored.Clock)
	assert.True(t, stored.UpdatedAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, []string{"InKitchen"}, sink.drain())

	// the device copy that missed the change is now stale
	out := e.Reconcile(ctx, cashier, o)
	assert.Equal(t, ReasonStale, out.Reason)

	_, err = e.Transition(ctx, cashier, uuid.NewString(), models.StatusInKitchen)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	other := models.Principal{Subject: "x", Role: models.RoleAdmin, TenantID: "tenant-2"}
	_, err = e.Transition(ctx, other, orderX, models.StatusReady)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReconcile_SinkFailureKeepsMerge(t *testing.T) {
	e, sink := setupEngine(t)
	sink.err = errors.New("sink down")
	ctx := context.Background()

	o := newOrder(orderX, vclock.Clock{"A": 2}, t0)
	o.Status = models.StatusInKitchen
	assert.Equal(t, Created, e.Reconcile(ctx, cashier, o).Result)

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInKitchen, stored.Status)
}

func TestReconcile_ConcurrentDevicesConverge(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	base := newOrder(orderX, vclock.Clock{"A": 1}, t0)
	require.Equal(t, Created, e.Reconcile(ctx, cashier, base).Result)

	const devices = 6
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := base.Clone()
			o.Clock = base.Clock.Tick(fmt.Sprintf("D%d", i))
			o.UpdatedAt = t0.Add(time.Duration(i+1) * time.Second)
			out := e.Reconcile(ctx, cashier, o)
			assert.Equal(t, Updated, out.Result)
		}(i)
	}
	wg.Wait()

	stored, err := e.Ledger.Get(ctx, cashier.TenantID, orderX)
	require.NoError(t, err)
	for i := 0; i < devices; i++ {
		assert.Equal(t, uint64(1), stored.Clock.Get(fmt.Sprintf("D%d", i)))
	}
	assert.Equal(t, uint64(1), stored.Clock.Get("A"))
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonNone, ReasonFor(nil))
	assert.Equal(t, ReasonStale, ReasonFor(fmt.Errorf("wrapped: %w", ErrStale)))
	assert.Equal(t, ReasonInternal, ReasonFor(errors.New("disk on fire")))
	assert.Equal(t, ReasonNotFound, ReasonFor(ledger.ErrNotFound))
}
