// Package device is the client side of order sync: an offline buffer that
// stamps every local mutation with the device's clock, keeps it durable,
// and flushes it to the server when a connection is available.
package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/vclock"
	"github.com/yeremiapane/omnipos/workflow"
)

var (
	ErrUnknownOrder = errors.New("order not in buffer")
	ErrClosedOrder  = errors.New("order is paid or cancelled")
	ErrEmptyOrder   = errors.New("order has no items")
)

// Entry is one immutable snapshot in the buffer. LastRejection carries the
// reason of the last hard rejection by the server, if any.
type Entry struct {
	Order         models.Order
	LastRejection string
}

// Persister is where the buffer writes snapshots before it installs them.
type Persister interface {
	Save(ctx context.Context, e Entry) error
}

// Buffer is an arena of order snapshots owned by one device and tenant.
// Entries are never edited: every mutation builds a new snapshot, persists
// it and then swaps the pointer.
type Buffer struct {
	mu       sync.RWMutex
	deviceID string
	tenantID string
	staffID  string
	entries  map[string]*Entry
	store    Persister
	now      func() time.Time
}

// NewBuffer returns an empty buffer. store may be nil for a memory-only
// buffer.
func NewBuffer(deviceID, tenantID string, store Persister) *Buffer {
	return &Buffer{
		deviceID: deviceID,
		tenantID: tenantID,
		entries:  make(map[string]*Entry),
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LoadBuffer opens the buffer of tenantID kept in s.
func LoadBuffer(ctx context.Context, s *Store, tenantID string) (*Buffer, error) {
	id, err := s.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	b := NewBuffer(id, tenantID, s)
	for i := range entries {
		e := entries[i]
		b.entries[e.Order.ID] = &e
	}
	return b, nil
}

func (b *Buffer) DeviceID() string { return b.deviceID }

func (b *Buffer) TenantID() string { return b.tenantID }

// SetStaff records who is operating the device; new orders carry it.
func (b *Buffer) SetStaff(staffID string) {
	b.mu.Lock()
	b.staffID = staffID
	b.mu.Unlock()
}

// Item is one line of a Draft.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Modifiers []string
}

// Draft is what a till enters for a new order.
type Draft struct {
	TableID        *string
	CustomerName   string
	GuestCount     int
	Notes          string
	PaymentMethod  string
	Items          []Item
	DiscountType   models.DiscountType
	DiscountValue  decimal.Decimal
	DiscountReason string
	ServiceCharge  decimal.Decimal
	Metadata       datatypes.JSON
}

// Create starts a new order in Placed with clock {device:1}.
func (b *Buffer) Create(ctx context.Context, d Draft) (models.Order, error) {
	if len(d.Items) == 0 {
		return models.Order{}, ErrEmptyOrder
	}
	now := b.now()

	o := models.Order{
		ID:             uuid.NewString(),
		TenantID:       b.tenantID,
		TableID:        d.TableID,
		CustomerName:   d.CustomerName,
		GuestCount:     d.GuestCount,
		Notes:          d.Notes,
		PaymentMethod:  d.PaymentMethod,
		DiscountType:   d.DiscountType,
		DiscountReason: d.DiscountReason,
		Metadata:       d.Metadata,
		Status:         models.StatusPlaced,
		Clock:          vclock.Clock{}.Tick(b.deviceID),
		CreatedAt:      now,
		UpdatedAt:      now,
		SyncStatus:     models.SyncOffline,
	}
	for i, it := range d.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return models.Order{}, fmt.Errorf("item %d: product, positive quantity and price are required", i)
		}
		o.Items = append(o.Items, models.OrderItem{
			Position:  i,
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Modifiers: datatypes.JSONSlice[string](it.Modifiers),
		})
	}

	t, err := ComputeTotals(o.Items, d.DiscountType, d.DiscountValue, d.ServiceCharge)
	if err != nil {
		return models.Order{}, err
	}
	t.apply(&o)

	b.mu.Lock()
	defer b.mu.Unlock()
	o.StaffID = b.staffID
	if err := b.install(ctx, Entry{Order: o}); err != nil {
		return models.Order{}, err
	}
	return o.Clone(), nil
}

// Transition moves an order one workflow step and ticks the device clock.
func (b *Buffer) Transition(ctx context.Context, id string, to models.OrderStatus) (models.Order, error) {
	return b.mutate(ctx, id, func(cur models.Order, now time.Time) (models.Order, error) {
		next, _, err := workflow.Apply(cur, to, now)
		return next, err
	})
}

// Amendment lists the fields Amend may change; nil fields are kept.
type Amendment struct {
	DiscountType      *models.DiscountType
	DiscountValue     *decimal.Decimal
	DiscountReason    *string
	ServiceCharge     *decimal.Decimal
	Metadata          datatypes.JSON
	PendingAmendments datatypes.JSON
}

// Amend edits totals and blobs of an open order and recomputes its final
// total.
func (b *Buffer) Amend(ctx context.Context, id string, a Amendment) (models.Order, error) {
	return b.mutate(ctx, id, func(cur models.Order, _ time.Time) (models.Order, error) {
		if workflow.Terminal(cur.Status) {
			return models.Order{}, ErrClosedOrder
		}
		next := cur.Clone()

		discountValue := cur.Discount
		if cur.DiscountType == models.DiscountPercent && !cur.Subtotal.IsZero() {
			discountValue = cur.Discount.Mul(hundred).Div(cur.Subtotal).Round(2)
		}
		if a.DiscountType != nil {
			next.DiscountType = *a.DiscountType
		}
		if a.DiscountValue != nil {
			discountValue = *a.DiscountValue
		}
		if a.DiscountReason != nil {
			next.DiscountReason = *a.DiscountReason
		}
		serviceCharge := cur.ServiceCharge
		if a.ServiceCharge != nil {
			serviceCharge = *a.ServiceCharge
		}
		if a.Metadata != nil {
			next.Metadata = a.Metadata
		}
		if a.PendingAmendments != nil {
			next.PendingAmendments = a.PendingAmendments
		}

		t, err := ComputeTotals(next.Items, next.DiscountType, discountValue, serviceCharge)
		if err != nil {
			return models.Order{}, err
		}
		t.apply(&next)
		return next, nil
	})
}

func (b *Buffer) mutate(ctx context.Context, id string, fn func(models.Order, time.Time) (models.Order, error)) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.entries[id]
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	now := b.now()
	next, err := fn(cur.Order, now)
	if err != nil {
		return models.Order{}, err
	}
	next.Clock = cur.Order.Clock.Tick(b.deviceID)
	next.UpdatedAt = now
	next.SyncStatus = models.SyncOffline

	if err := b.install(ctx, Entry{Order: next}); err != nil {
		return models.Order{}, err
	}
	return next.Clone(), nil
}

// install persists e and makes it the current snapshot. Callers hold mu.
func (b *Buffer) install(ctx context.Context, e Entry) error {
	if b.store != nil {
		if err := b.store.Save(ctx, e); err != nil {
			return err
		}
	}
	b.entries[e.Order.ID] = &e
	return nil
}

// Get returns the current snapshot of id.
func (b *Buffer) Get(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{Order: e.Order.Clone(), LastRejection: e.LastRejection}, true
}

// All returns every snapshot, oldest first.
func (b *Buffer) All() []Entry {
	return b.collect(func(*Entry) bool { return true })
}

// Unsynced returns every Offline snapshot, oldest first.
func (b *Buffer) Unsynced() []models.Order {
	entries := b.collect(func(e *Entry) bool { return e.Order.SyncStatus == models.SyncOffline })
	out := make([]models.Order, len(entries))
	for i, e := range entries {
		out[i] = e.Order
	}
	return out
}

func (b *Buffer) collect(keep func(*Entry) bool) []Entry {
	b.mu.RLock()
	var out []Entry
	for _, e := range b.entries {
		if keep(e) {
			out = append(out, Entry{Order: e.Order.Clone(), LastRejection: e.LastRejection})
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].Order, out[j].Order
		if !a.CreatedAt.Equal(c.CreatedAt) {
			return a.CreatedAt.Before(c.CreatedAt)
		}
		return a.ID < c.ID
	})
	return out
}

// Adopt installs server copies as Synchronized. A local snapshot that is
// still Offline and not dominated by the server copy is kept so it can be
// flushed, unless the server already refused it. Orders of other tenants
// are ignored. It returns how many snapshots were replaced.
func (b *Buffer) Adopt(ctx context.Context, orders []models.Order) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	adopted := 0
	for _, o := range orders {
		if o.TenantID != b.tenantID {
			continue
		}
		if cur, ok := b.entries[o.ID]; ok && cur.Order.SyncStatus == models.SyncOffline &&
			cur.LastRejection == "" && !o.Clock.Dominates(cur.Order.Clock) {
			continue
		}
		next := o.Clone()
		next.SyncStatus = models.SyncSynchronized
		if err := b.install(ctx, Entry{Order: next}); err != nil {
			return adopted, err
		}
		adopted++
	}
	return adopted, nil
}
