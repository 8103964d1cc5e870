package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/yeremiapane/omnipos/vclock"
)

func TestNewTarget(t *testing.T) {
	target, err := NewTarget("Kitchen", "", false)
	assert.NoError(t, err)
	assert.Equal(t, TargetRole, target.Kind())
	assert.Equal(t, RoleKitchen, target.Role())

	target, err = NewTarget("", "staff-7", false)
	assert.NoError(t, err)
	assert.Equal(t, TargetUser, target.Kind())
	assert.Equal(t, "staff-7", target.UserID())

	target, err = NewTarget("", "", true)
	assert.NoError(t, err)
	assert.Equal(t, TargetBroadcast, target.Kind())

	target, err = NewTarget(BroadcastSentinel, "", false)
	assert.NoError(t, err)
	assert.Equal(t, TargetBroadcast, target.Kind())

	_, err = NewTarget("", "", false)
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = NewTarget("Kitchen", "staff-7", false)
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = NewTarget("Kitchen", "", true)
	assert.ErrorIs(t, err, ErrAmbiguousTarget)

	_, err = NewTarget("Chef", "", false)
	assert.Error(t, err)
}

func TestTargetMatches(t *testing.T) {
	waiter := Principal{Subject: "staff-1", Role: RoleWaiter, TenantID: "t1"}
	cook := Principal{Subject: "staff-2", Role: RoleKitchen, TenantID: "t1"}

	assert.True(t, BroadcastTarget().Matches(waiter))
	assert.True(t, BroadcastTarget().Matches(cook))

	assert.True(t, RoleTarget(RoleKitchen).Matches(cook))
	assert.False(t, RoleTarget(RoleKitchen).Matches(waiter))

	assert.True(t, UserTarget("staff-1").Matches(waiter))
	assert.False(t, UserTarget("staff-1").Matches(cook))

	assert.False(t, Target{}.Matches(waiter))
}

func TestNotificationTargetColumns(t *testing.T) {
	cases := []struct {
		target   Target
		role     string
		userID   string
		rendered string
	}{
		{BroadcastTarget(), "All", "", "All"},
		{RoleTarget(RoleWaiter), "Waiter", "", "role:Waiter"},
		{UserTarget("staff-9"), "", "staff-9", "user:staff-9"},
	}
	for _, tc := range cases {
		var n Notification
		n.SetTarget(tc.target)
		assert.Equal(t, tc.role, n.TargetRole)
		assert.Equal(t, tc.userID, n.TargetUserID)
		assert.Equal(t, tc.target, n.Target())
		assert.Equal(t, tc.rendered, n.Target().String())
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		assert.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRole("admin")
	assert.Error(t, err)
}

func TestOrderClone(t *testing.T) {
	table := "T1"
	paid := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := Order{
		ID:       "3f1c6f5e-2a40-4c1e-9d38-0f0e3c1a2b77",
		TableID:  &table,
		PaidAt:   &paid,
		Metadata: datatypes.JSON(`{"source":"till"}`),
		Clock:    vclock.Clock{"A": 2},
		Items: []OrderItem{{
			ProductID: "p1",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("4.50"),
			Modifiers: datatypes.JSONSlice[string]{"no ice"},
		}},
	}

	c := o.Clone()
	*c.TableID = "T2"
	c.Metadata[2] = 'X'
	c.Clock["A"] = 9
	c.Items[0].Quantity = 5
	c.Items[0].Modifiers[0] = "extra ice"

	assert.Equal(t, "T1", *o.TableID)
	assert.Equal(t, `{"source":"till"}`, string(o.Metadata))
	assert.Equal(t, uint64(2), o.Clock.Get("A"))
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, "no ice", o.Items[0].Modifiers[0])
}

func TestOrderHelpers(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	o := Order{ID: "3f1c6f5e-2a40-4c1e-9d38-0f0e3c1a2b77", CreatedAt: created}
	assert.Equal(t, "3f1c6f5e", o.ShortID())
	assert.Equal(t, "takeaway", o.TableLabel())
	assert.Equal(t, created, o.ModifiedAt())

	table := "12"
	o.TableID = &table
	o.UpdatedAt = created.Add(time.Minute)
	assert.Equal(t, "table 12", o.TableLabel())
	assert.Equal(t, created.Add(time.Minute), o.ModifiedAt())

	item := OrderItem{Quantity: 3, UnitPrice: decimal.RequireFromString("2.25")}
	assert.True(t, item.LineTotal().Equal(decimal.RequireFromString("6.75")))
}
