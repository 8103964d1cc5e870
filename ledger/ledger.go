// Package ledger is the authoritative, tenant-partitioned order store.
//
// Every write goes through Mutate, which serialises writers of the same
// (tenant, order) pair: an in-process lock, a transaction and, on dialects
// that support it, a row lock on the stored order.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/omnipos/models"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrIDConflict = errors.New("order id already used by another tenant")
)

// Change tells Mutate what to do with the order returned by its callback.
type Change int

const (
	NoChange Change = iota
	Insert
	Update
)

func (c Change) String() string {
	switch c {
	case Insert:
		return "insert"
	case Update:
		return "update"
	}
	return "none"
}

// MutateFunc receives the stored order, or nil when the tenant has none with
// that id, and returns the next snapshot plus what should be written.
// Returning an error aborts the transaction without writing anything.
type MutateFunc func(current *models.Order) (models.Order, Change, error)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 200

type Ledger struct {
	DB    *gorm.DB
	locks *keyedLocker
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db, locks: newKeyedLocker()}
}

// Get returns the order with id inside tenantID.
func (l *Ledger) Get(ctx context.Context, tenantID, id string) (models.Order, error) {
	o, err := load(l.DB.WithContext(ctx), tenantID, id, false)
	if err != nil {
		return models.Order{}, err
	}
	if o == nil {
		return models.Order{}, ErrNotFound
	}
	return *o, nil
}

// List returns the tenant's orders newest first.
func (l *Ledger) List(ctx context.Context, tenantID string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var orders []models.Order
	err := l.DB.WithContext(ctx).
		Preload("Items", orderItems).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Mutate runs fn inside the critical section of (tenantID, id) and applies
// its result in the same transaction. The returned order is the stored
// state after the write, or the current state for NoChange.
func (l *Ledger) Mutate(ctx context.Context, tenantID, id string, fn MutateFunc) (models.Order, Change, error) {
	unlock := l.locks.Lock(lockKey(tenantID, id))
	defer unlock()

	var (
		result models.Order
		change Change
	)
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := load(tx, tenantID, id, true)
		if err != nil {
			return err
		}

		next, ch, err := fn(current)
		if err != nil {
			return err
		}
		change = ch

		switch ch {
		case Insert:
			if current != nil {
				return fmt.Errorf("insert over existing order %s", id)
			}
			if err := insert(tx, tenantID, id, next); err != nil {
				return err
			}
		case Update:
			if current == nil {
				return ErrNotFound
			}
			if err := update(tx, tenantID, id, next); err != nil {
				return err
			}
		default:
			if current != nil {
				result = *current
			}
			return nil
		}

		stored, err := load(tx, tenantID, id, false)
		if err != nil {
			return err
		}
		if stored == nil {
			return ErrNotFound
		}
		result = *stored
		return nil
	})
	if err != nil {
		return models.Order{}, NoChange, err
	}
	return result, change, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func load(db *gorm.DB, tenantID, id string, forUpdate bool) (*models.Order, error) {
	q := db.Preload("Items", orderItems)
	if forUpdate && db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var o models.Order
	err := q.Where("tenant_id = ? AND id = ?", tenantID, id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return &o, nil
}

// insert writes a new order. An id already used by another tenant only
// shows up as the primary key violation; the other tenant's row is never
// read.
func insert(tx *gorm.DB, tenantID, id string, o models.Order) error {
	row := o.Clone()
	row.ID = id
	row.TenantID = tenantID
	row.SyncStatus = models.SyncSynchronized
	for i := range row.Items {
		row.Items[i].ID = 0
		row.Items[i].OrderID = id
		row.Items[i].Position = i
	}

	if err := tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrIDConflict
		}
		return fmt.Errorf("insert order %s: %w", id, err)
	}
	return nil
}

// update overwrites the mutable fields only. Tenant, id, items and the
// creation time are never rewritten.
func update(tx *gorm.DB, tenantID, id string, o models.Order) error {
	fields := map[string]interface{}{
		"status":             o.Status,
		"subtotal":           o.Subtotal,
		"discount":           o.Discount,
		"discount_type":      o.DiscountType,
		"discount_reason":    o.DiscountReason,
		"service_charge":     o.ServiceCharge,
		"final_total":        o.FinalTotal,
		"metadata":           o.Metadata,
		"pending_amendments": o.PendingAmendments,
		"clock":              o.Clock,
		"paid_at":            o.PaidAt,
		"updated_at":         o.UpdatedAt,
		"sync_status":        models.SyncSynchronized,
	}
	res := tx.Model(&models.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
