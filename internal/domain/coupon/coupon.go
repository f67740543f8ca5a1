package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a percentage-based discount to the cart total.
	TypePercentage Type = "percentage"
	// TypeFixed applies a fixed monetary discount capped at the cart total.
	TypeFixed Type = "fixed"
	// TypeFreeShipping waives the shipping cost; the waiver itself is applied
	// by the order total calculation, not by the discount engine.
	TypeFreeShipping Type = "free_shipping"
)

// Validation failures, each a distinct caller-facing reason.
var (
	ErrInvalidCoupon       = errors.New("invalid coupon code")
	ErrCouponInactive      = errors.New("coupon is not active")
	ErrCouponNotYetValid   = errors.New("coupon is not yet valid")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrUsageLimitReached   = errors.New("coupon usage limit reached")
	ErrUserLimitReached    = errors.New("coupon usage limit for this user reached")
	ErrCouponNotApplicable = errors.New("coupon does not apply to any item in the cart")
)

// MinPurchaseError is returned when the cart total is below the coupon's
// minimum purchase amount. The message carries the required minimum.
type MinPurchaseError struct {
	Minimum decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return "minimum purchase of " + e.Minimum.StringFixed(2) + " required"
}

// Coupon defines a discount code's behaviour and eligibility constraints.
// Codes are stored and compared in uppercase.
type Coupon struct {
	Code        string
	Type        Type
	Value       decimal.Decimal
	Description string

	// MinPurchase is the minimum cart total required; zero means no minimum.
	MinPurchase decimal.Decimal
	// MaxDiscount caps the computed discount; zero means uncapped.
	MaxDiscount decimal.Decimal
	// UsageLimit bounds total redemptions across all users; zero means unlimited.
	UsageLimit int
	// UserLimit bounds redemptions per user; zero means the default of one.
	UserLimit int

	StartsAt *time.Time
	EndsAt   *time.Time
	Active   bool

	// Products restricts the coupon to carts containing at least one of the
	// listed product IDs. ExcludedProducts removes items from eligibility.
	// Both empty means the coupon applies to any cart.
	Products         []string
	ExcludedProducts []string
}

// Usage is one redemption record in the coupon's append-only usage log.
// The log is the source of truth for both global and per-user usage counts.
type Usage struct {
	UserID  string
	OrderID string
	UsedAt  time.Time
}

// UsageCounts holds redemption counts derived from the usage log.
type UsageCounts struct {
	Total  int
	ByUser int
}

// Item is a cart line item used for eligibility checks.
type Item struct {
	ProductID string
	Quantity  int
}

// Repository provides read access to coupons and their usage log.
// Mutation of the usage log happens only inside the order-creation
// transaction, via the order repository.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	UsageCounts(ctx context.Context, code, userID string) (UsageCounts, error)
}

// NormalizeCode upper-cases and trims a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// userLimit returns the effective per-user redemption limit.
func (c *Coupon) userLimit() int {
	if c.UserLimit <= 0 {
		return 1
	}
	return c.UserLimit
}

// Check runs the ordered eligibility checks against the given context.
// It is pure: no clock, no storage. Callers supply the usage counts and the
// current time, which lets the same rules run both in the read-only
// validation path and under the order-creation transaction's row lock.
func Check(c *Coupon, cartTotal decimal.Decimal, items []Item, used UsageCounts, now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return ErrCouponNotYetValid
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return ErrCouponExpired
	}
	if c.UsageLimit > 0 && used.Total >= c.UsageLimit {
		return ErrUsageLimitReached
	}
	if used.ByUser >= c.userLimit() {
		return ErrUserLimitReached
	}
	if c.MinPurchase.IsPositive() && cartTotal.LessThan(c.MinPurchase) {
		return &MinPurchaseError{Minimum: c.MinPurchase}
	}
	if !c.appliesTo(items) {
		return ErrCouponNotApplicable
	}
	return nil
}

// appliesTo reports whether at least one cart item is eligible under the
// coupon's product allow/exclude lists.
func (c *Coupon) appliesTo(items []Item) bool {
	if len(c.Products) == 0 && len(c.ExcludedProducts) == 0 {
		return true
	}

	allowed := make(map[string]bool, len(c.Products))
	for _, id := range c.Products {
		allowed[id] = true
	}
	excluded := make(map[string]bool, len(c.ExcludedProducts))
	for _, id := range c.ExcludedProducts {
		excluded[id] = true
	}

	for _, item := range items {
		if excluded[item.ProductID] {
			continue
		}
		if len(allowed) == 0 || allowed[item.ProductID] {
			return true
		}
	}
	return false
}
