package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderItem struct {
	ID        uint                        `gorm:"primaryKey" json:"-"`
	// Omitting Order field to avoid recursive nesting
	OrderID   string                      `gorm:"type:varchar(36);not null;index" json:"-"`
	Position  int                         `gorm:"not null" json:"-"`
	ProductID string                      `gorm:"type:varchar(64);not null" json:"productId"`
	Name      string                      `gorm:"type:varchar(255)" json:"name,omitempty"`
	Quantity  int                         `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal             `gorm:"type:decimal(12,2);not null" json:"unitPrice"`
	Modifiers datatypes.JSONSlice[string] `json:"modifiers,omitempty"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i OrderItem) Clone() OrderItem {
	out := i
	if i.Modifiers != nil {
		out.Modifiers = append(datatypes.JSONSlice[string]{}, i.Modifiers...)
	}
	return out
}
