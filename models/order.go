package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/yeremiapane/omnipos/vclock"
)

type OrderStatus string

const (
	StatusPlaced    OrderStatus = "Placed"
	StatusInKitchen OrderStatus = "InKitchen"
	StatusReady     OrderStatus = "Ready"
	StatusServed    OrderStatus = "Served"
	StatusPaid      OrderStatus = "Paid"
	StatusCancelled OrderStatus = "Cancelled"
)

// Valid reports whether s is one of the known workflow states.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPlaced, StatusInKitchen, StatusReady, StatusServed, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncOffline      SyncStatus = "Offline"
	SyncSynchronized SyncStatus = "Synchronized"
)

type DiscountType string

const (
	DiscountNone    DiscountType = ""
	DiscountPercent DiscountType = "Percent"
	DiscountFixed   DiscountType = "Fixed"
)

type Order struct {
	ID                string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID          string          `gorm:"type:varchar(64);not null;index:idx_orders_tenant_created,priority:1" json:"tenantId"`
	TableID           *string         `gorm:"type:varchar(64)" json:"tableId,omitempty"`
	StaffID           string          `gorm:"type:varchar(64)" json:"staffId,omitempty"`
	CustomerName      string          `gorm:"type:varchar(255)" json:"customerName"`
	GuestCount        int             `gorm:"not null;default:0" json:"guestCount"`
	Notes             string          `gorm:"type:text" json:"notes,omitempty"`
	PaymentMethod     string          `gorm:"type:varchar(32)" json:"paymentMethod,omitempty"`
	Items             []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0.00" json:"subtotal"`
	Discount          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0.00" json:"discount"`
	DiscountType      DiscountType    `gorm:"type:varchar(16)" json:"discountType,omitempty"`
	DiscountReason    string          `gorm:"type:varchar(255)" json:"discountReason,omitempty"`
	ServiceCharge     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0.00" json:"serviceCharge"`
	FinalTotal        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0.00" json:"finalTotal"`
	Status            OrderStatus     `gorm:"type:varchar(20);not null;default:'Placed'" json:"status"`
	Metadata          datatypes.JSON  `json:"metadataJson,omitempty"`
	PendingAmendments datatypes.JSON  `json:"pendingAmendmentsJson,omitempty"`
	Clock             vclock.Clock    `gorm:"type:text;not null" json:"clock"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime:false;index:idx_orders_tenant_created,priority:2" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"not null;autoUpdateTime:false" json:"updatedAt"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	SyncStatus        SyncStatus      `gorm:"type:varchar(16);not null;default:'Synchronized'" json:"syncStatus"`
}

// ShortID is the 8 character prefix staff see on tickets.
func (o Order) ShortID() string {
	if len(o.ID) <= 8 {
		return o.ID
	}
	return o.ID[:8]
}

// TableLabel describes where the order sits, for notification text.
func (o Order) TableLabel() string {
	if o.TableID == nil || *o.TableID == "" {
		return "takeaway"
	}
	return fmt.Sprintf("table %s", *o.TableID)
}

// ModifiedAt is the wall-clock time of the last write, falling back to the
// creation time for orders that were never touched after creation.
func (o Order) ModifiedAt() time.Time {
	if o.UpdatedAt.IsZero() {
		return o.CreatedAt
	}
	return o.UpdatedAt
}

// Clone returns a snapshot that shares no mutable state with o.
func (o Order) Clone() Order {
	out := o
	if o.TableID != nil {
		t := *o.TableID
		out.TableID = &t
	}
	if o.PaidAt != nil {
		p := *o.PaidAt
		out.PaidAt = &p
	}
	if o.Items != nil {
		out.Items = make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			out.Items[i] = it.Clone()
		}
	}
	out.Metadata = cloneJSON(o.Metadata)
	out.PendingAmendments = cloneJSON(o.PendingAmendments)
	if o.Clock != nil {
		out.Clock = o.Clock.Clone()
	}
	return out
}

func cloneJSON(j datatypes.JSON) datatypes.JSON {
	if j == nil {
		return nil
	}
	out := make(datatypes.JSON, len(j))
	copy(out, j)
	return out
}
