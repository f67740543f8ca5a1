package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount holds the computed discount amount tagged with the coupon type.
// For free_shipping the amount is zero; the shipping waiver is applied by
// the order total calculation.
type Discount struct {
	Type   Type
	Amount decimal.Decimal
}

// Calculate computes the discount for the coupon against the cart total.
// The type dispatch is exhaustive over the closed Type set; an unknown type
// is a programming error and returns an error rather than a silent zero.
// Rounding to 2 decimal places happens once, after the caps, so intermediate
// arithmetic keeps full precision.
func Calculate(c *Coupon, cartTotal decimal.Decimal) (Discount, error) {
	var amount decimal.Decimal

	switch c.Type {
	case TypePercentage:
		amount = cartTotal.Mul(c.Value).Div(hundred)
	case TypeFixed:
		// Capped at the cart total so a flat discount can never push the
		// order total negative.
		amount = decimal.Min(c.Value, cartTotal)
	case TypeFreeShipping:
		return Discount{Type: TypeFreeShipping, Amount: decimal.Zero}, nil
	default:
		return Discount{}, errors.Errorf("unsupported coupon type: %q", c.Type)
	}

	if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		amount = c.MaxDiscount
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	return Discount{Type: c.Type, Amount: amount.Round(2)}, nil
}
