package device

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/omnipos/models"
)

var hundred = decimal.NewFromInt(100)

// Totals are the money fields of an order derived from its items.
type Totals struct {
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	ServiceCharge decimal.Decimal
	FinalTotal    decimal.Decimal
}

// ComputeTotals sums the items and applies the discount and the service
// charge. A Percent discount takes value as a percentage of the subtotal;
// a Fixed one is an amount. The discount never exceeds the subtotal.
func ComputeTotals(items []models.OrderItem, typ models.DiscountType, value, serviceCharge decimal.Decimal) (Totals, error) {
	if value.IsNegative() {
		return Totals{}, fmt.Errorf("discount must not be negative")
	}
	if serviceCharge.IsNegative() {
		return Totals{}, fmt.Errorf("service charge must not be negative")
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}

	var discount decimal.Decimal
	switch typ {
	case models.DiscountNone:
		if !value.IsZero() {
			return Totals{}, fmt.Errorf("discount value given without a discount type")
		}
	case models.DiscountPercent:
		if value.GreaterThan(hundred) {
			return Totals{}, fmt.Errorf("percent discount %s exceeds 100", value)
		}
		discount = subtotal.Mul(value).Div(hundred).Round(2)
	case models.DiscountFixed:
		discount = value.Round(2)
	default:
		return Totals{}, fmt.Errorf("unknown discount type %q", typ)
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	return Totals{
		Subtotal:      subtotal.Round(2),
		Discount:      discount,
		ServiceCharge: serviceCharge.Round(2),
		FinalTotal:    subtotal.Sub(discount).Add(serviceCharge).Round(2),
	}, nil
}

func (t Totals) apply(o *models.Order) {
	o.Subtotal = t.Subtotal
	o.Discount = t.Discount
	o.ServiceCharge = t.ServiceCharge
	o.FinalTotal = t.FinalTotal
}
