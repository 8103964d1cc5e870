package reconcile

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yeremiapane/omnipos/models"
)

func validate(o models.Order) error {
	if _, err := uuid.Parse(o.ID); err != nil {
		return &ValidationError{Field: "id", Msg: "must be a UUID"}
	}
	if !o.Status.Valid() {
		return &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown value %q", o.Status)}
	}
	switch o.DiscountType {
	case models.DiscountNone, models.DiscountPercent, models.DiscountFixed:
	default:
		return &ValidationError{Field: "discountType", Msg: fmt.Sprintf("unknown value %q", o.DiscountType)}
	}
	if o.GuestCount < 0 {
		return &ValidationError{Field: "guestCount", Msg: "must not be negative"}
	}

	money := []struct {
		field string
		value decimal.Decimal
	}{
		{"subtotal", o.Subtotal},
		{"discount", o.Discount},
		{"serviceCharge", o.ServiceCharge},
		{"finalTotal", o.FinalTotal},
	}
	for _, m := range money {
		if m.value.IsNegative() {
			return &ValidationError{Field: m.field, Msg: "must not be negative"}
		}
		if !centPrecise(m.value) {
			return &ValidationError{Field: m.field, Msg: "must not have more than two decimal places"}
		}
	}

	for i, it := range o.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: fmt.Sprintf("items[%d].productId", i), Msg: "is required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Msg: "must be positive"}
		}
		if it.UnitPrice.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Msg: "must not be negative"}
		}
		if !centPrecise(it.UnitPrice) {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Msg: "must not have more than two decimal places"}
		}
	}
	return nil
}

// centPrecise reports whether d fits a decimal(12,2) column without
// rounding. Trailing zeros such as 42.000 are fine.
func centPrecise(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
