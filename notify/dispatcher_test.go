package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/omnipos/database"
	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/workflow"
)

var (
	waiter = models.Principal{Subject: "staff-w", Role: models.RoleWaiter, TenantID: "tenant-1"}
	cook   = models.Principal{Subject: "staff-k", Role: models.RoleKitchen, TenantID: "tenant-1"}
)

func setupDispatcher(t *testing.T) *Dispatcher {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	d := NewDispatcher(db)
	clock := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	d.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return d
}

func messages(list []models.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.Message
	}
	return out
}

func TestNotifyAndListFor(t *testing.T) {
	d := setupDispatcher(t)
	ctx := context.Background()

	_, err := d.Notify(ctx, "tenant-1", models.BroadcastTarget(), "kitchen closes at 22:00", "", nil)
	require.NoError(t, err)
	_, err = d.Notify(ctx, "tenant-1", models.RoleTarget(models.RoleKitchen), "low on rice", "", nil)
	require.NoError(t, err)
	_, err = d.Notify(ctx, "tenant-1", models.UserTarget("staff-w"), "see the manager", "", nil)
	require.NoError(t, err)
	_, err = d.Notify(ctx, "tenant-2", models.BroadcastTarget(), "other branch", "", nil)
	require.NoError(t, err)

	list, err := d.ListFor(ctx, waiter)
	require.NoError(t, err)
	assert.Equal(t, []string{"see the manager", "kitchen closes at 22:00"}, messages(list))
	assert.Equal(t, TypeGeneral, list[0].Type)
	assert.Equal(t, models.UserTarget("staff-w"), list[0].Target())

	list, err = d.ListFor(ctx, cook)
	require.NoError(t, err)
	assert.Equal(t, []string{"low on rice", "kitchen closes at 22:00"}, messages(list))
}

func TestNotify_Rejects(t *testing.T) {
	d := setupDispatcher(t)
	ctx := context.Background()

	_, err := d.Notify(ctx, "tenant-1", models.Target{}, "hello", "", nil)
	assert.ErrorIs(t, err, models.ErrAmbiguousTarget)

	_, err = d.Notify(ctx, "tenant-1", models.BroadcastTarget(), "   ", "", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestListFor_Limit(t *testing.T) {
	d := setupDispatcher(t)
	ctx := context.Background()

	for i := 0; i < ListLimit+5; i++ {
		_, err := d.Notify(ctx, "tenant-1", models.BroadcastTarget(), fmt.Sprintf("note %d", i), "", nil)
		require.NoError(t, err)
	}
	list, err := d.ListFor(ctx, waiter)
	require.NoError(t, err)
	require.Len(t, list, ListLimit)
	assert.Equal(t, fmt.Sprintf("note %d", ListLimit+4), list[0].Message)
}

func TestMarkRead(t *testing.T) {
	d := setupDispatcher(t)
	ctx := context.Background()

	n, err := d.Notify(ctx, "tenant-1", models.RoleTarget(models.RoleWaiter), "table 4 needs water", "", nil)
	require.NoError(t, err)

	require.NoError(t, d.MarkRead(ctx, waiter, n.ID))
	require.NoError(t, d.MarkRead(ctx, waiter, n.ID), "marking twice is fine")

	list, err := d.ListFor(ctx, waiter)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)

	assert.ErrorIs(t, d.MarkRead(ctx, waiter, n.ID+100), ErrNotFound)

	outsider := models.Principal{Subject: "x", Role: models.RoleWaiter, TenantID: "tenant-2"}
	assert.ErrorIs(t, d.MarkRead(ctx, outsider, n.ID), ErrNotFound)
}

func TestHandleEvents(t *testing.T) {
	d := setupDispatcher(t)
	ctx := context.Background()

	table := "T2"
	events := []workflow.Event{
		{TenantID: "tenant-1", OrderID: "0b7c1f9e-0000-4000-8000-000000000001", TableID: &table, From: models.StatusPlaced, To: models.StatusInKitchen},
		{TenantID: "tenant-1", OrderID: "0b7c1f9e-0000-4000-8000-000000000001", TableID: &table, From: models.StatusInKitchen, To: models.StatusReady},
		{TenantID: "tenant-1", OrderID: "5d2e8a10-0000-4000-8000-000000000002", CustomerName: "Sari", From: models.StatusPlaced, To: models.StatusCancelled},
		{TenantID: "tenant-1", OrderID: "5d2e8a10-0000-4000-8000-000000000002", From: models.StatusServed, To: models.StatusPaid},
	}
	require.NoError(t, d.HandleEvents(ctx, events))

	kitchen, err := d.ListFor(ctx, cook)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Order 5d2e8a10 (takeaway, Sari) was cancelled",
		"New order 0b7c1f9e (table T2) is waiting in the kitchen",
	}, messages(kitchen))
	assert.Equal(t, TypeOrderCancelled, kitchen[0].Type)
	assert.Equal(t, TypeOrderInKitchen, kitchen[1].Type)
	require.NotNil(t, kitchen[1].OrderID)
	assert.Equal(t, "0b7c1f9e-0000-4000-8000-000000000001", *kitchen[1].OrderID)

	floor, err := d.ListFor(ctx, waiter)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Order 5d2e8a10 (takeaway, Sari) was cancelled",
		"Order 0b7c1f9e (table T2) is ready to serve",
	}, messages(floor))
	assert.Equal(t, models.RoleTarget(models.RoleWaiter), floor[1].Target())
}
