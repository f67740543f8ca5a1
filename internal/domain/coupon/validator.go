package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks a coupon code against cart and user context without
// recording usage. Safe to call repeatedly, e.g. while a user edits their
// cart; redemption is recorded only by the order-creation transaction,
// which re-runs the same checks under a row lock.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate looks up the coupon for the (case-insensitively matched) code and
// runs the ordered eligibility checks. It performs no writes; the returned
// coupon is unchanged. The result may be stale by the time an order is
// placed, which is acceptable: CreateOrder re-validates transactionally.
func (v *Validator) Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal, items []Item) (*Coupon, error) {
	normalized := NormalizeCode(code)

	c, err := v.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	used, err := v.repo.UsageCounts(ctx, normalized, userID)
	if err != nil {
		return nil, errors.Wrap(err, "count coupon usage")
	}

	if err := Check(c, cartTotal, items, used, v.now()); err != nil {
		return nil, err
	}
	return c, nil
}
