// Package notify stores staff notifications and answers who should see them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
	"github.com/yeremiapane/omnipos/workflow"
)

// Notification types.
const (
	TypeGeneral        = "General"
	TypeOrderInKitchen = "OrderInKitchen"
	TypeOrderReady     = "OrderReady"
	TypeOrderCancelled = "OrderCancelled"
)

// ListLimit is the most notifications ListFor returns.
const ListLimit = 50

var (
	ErrNotFound     = errors.New("notification not found")
	ErrEmptyMessage = errors.New("notification message is empty")
)

type Dispatcher struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Notify stores a notification for target inside tenantID. An empty type
// becomes General.
func (d *Dispatcher) Notify(ctx context.Context, tenantID string, target models.Target, message, typ string, orderID *string) (models.Notification, error) {
	if target.IsZero() {
		return models.Notification{}, models.ErrAmbiguousTarget
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return models.Notification{}, ErrEmptyMessage
	}
	if typ == "" {
		typ = TypeGeneral
	}

	n := models.Notification{
		TenantID:  tenantID,
		Message:   message,
		Type:      typ,
		OrderID:   orderID,
		CreatedAt: d.Now(),
	}
	n.SetTarget(target)

	if err := d.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return models.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	utils.InfoLogger.Printf("Notification %d created for %s in tenant %s", n.ID, target, tenantID)
	return n, nil
}

// ListFor returns the newest notifications addressed to p: broadcasts, its
// role and itself.
func (d *Dispatcher) ListFor(ctx context.Context, p models.Principal) ([]models.Notification, error) {
	var list []models.Notification
	err := d.DB.WithContext(ctx).
		Where("tenant_id = ?", p.TenantID).
		Where(d.DB.Where("target_role = ?", models.BroadcastSentinel).
			Or("target_role = ?", string(p.Role)).
			Or("target_user_id = ?", p.Subject)).
		Order("created_at DESC, id DESC").
		Limit(ListLimit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// MarkRead flags a notification of p's tenant as read. Marking it twice is
// not an error.
func (d *Dispatcher) MarkRead(ctx context.Context, p models.Principal, id uint) error {
	res := d.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("tenant_id = ? AND id = ?", p.TenantID, id).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification %d read: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// some drivers report zero rows for an unchanged value
	var count int64
	if err := d.DB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("tenant_id = ? AND id = ?", p.TenantID, id).
		Count(&count).Error; err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// HandleEvents turns workflow events into notifications. Every event is
// attempted; the returned error joins the failures.
func (d *Dispatcher) HandleEvents(ctx context.Context, events []workflow.Event) error {
	var errs []error
	for _, ev := range events {
		target, typ, message, ok := describe(ev)
		if !ok {
			continue
		}
		orderID := ev.OrderID
		if _, err := d.Notify(ctx, ev.TenantID, target, message, typ, &orderID); err != nil {
			errs = append(errs, fmt.Errorf("order %s %s: %w", ev.OrderID, ev.To, err))
		}
	}
	return errors.Join(errs...)
}

func describe(ev workflow.Event) (models.Target, string, string, bool) {
	ref := models.Order{ID: ev.OrderID, TableID: ev.TableID}
	who := ref.TableLabel()
	if ev.CustomerName != "" {
		who = fmt.Sprintf("%s, %s", who, ev.CustomerName)
	}

	switch ev.To {
	case models.StatusInKitchen:
		return models.RoleTarget(models.RoleKitchen), TypeOrderInKitchen,
			fmt.Sprintf("New order %s (%s) is waiting in the kitchen", ref.ShortID(), who), true
	case models.StatusReady:
		return models.RoleTarget(models.RoleWaiter), TypeOrderReady,
			fmt.Sprintf("Order %s (%s) is ready to serve", ref.ShortID(), who), true
	case models.StatusCancelled:
		return models.BroadcastTarget(), TypeOrderCancelled,
			fmt.Sprintf("Order %s (%s) was cancelled", ref.ShortID(), who), true
	}
	return models.Target{}, "", "", false
}
