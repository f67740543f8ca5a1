package coupon

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("save10"))
	assert.Equal(t, "SAVE10", NormalizeCode("  Save10  "))
	assert.Equal(t, "SAVE10", NormalizeCode("SAVE10"))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestCheck(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	cart := decimal.NewFromInt(100)
	items := []Item{{ProductID: "p1", Quantity: 1}}

	active := func(c Coupon) *Coupon {
		c.Active = true
		return &c
	}

	tests := []struct {
		name    string
		coupon  *Coupon
		cart    decimal.Decimal
		items   []Item
		used    UsageCounts
		wantErr error
	}{
		{
			name:   "active unrestricted coupon passes",
			coupon: active(Coupon{Code: "OK"}),
			cart:   cart,
			items:  items,
		},
		{
			name:    "inactive coupon",
			coupon:  &Coupon{Code: "OFF"},
			cart:    cart,
			items:   items,
			wantErr: ErrCouponInactive,
		},
		{
			name:    "not yet valid",
			coupon:  active(Coupon{Code: "SOON", StartsAt: &future}),
			cart:    cart,
			items:   items,
			wantErr: ErrCouponNotYetValid,
		},
		{
			name:    "expired",
			coupon:  active(Coupon{Code: "OLD", EndsAt: &past}),
			cart:    cart,
			items:   items,
			wantErr: ErrCouponExpired,
		},
		{
			name:   "inside validity window",
			coupon: active(Coupon{Code: "WINDOW", StartsAt: &past, EndsAt: &future}),
			cart:   cart,
			items:  items,
		},
		{
			name:    "global usage limit reached",
			coupon:  active(Coupon{Code: "CAPPED", UsageLimit: 100}),
			cart:    cart,
			items:   items,
			used:    UsageCounts{Total: 100},
			wantErr: ErrUsageLimitReached,
		},
		{
			name:   "under global usage limit",
			coupon: active(Coupon{Code: "ROOM", UsageLimit: 100}),
			cart:   cart,
			items:  items,
			used:   UsageCounts{Total: 99},
		},
		{
			name:   "zero usage limit means unlimited",
			coupon: active(Coupon{Code: "OPEN"}),
			cart:   cart,
			items:  items,
			used:   UsageCounts{Total: 100000},
		},
		{
			name:    "per-user limit defaults to one",
			coupon:  active(Coupon{Code: "ONCE"}),
			cart:    cart,
			items:   items,
			used:    UsageCounts{ByUser: 1},
			wantErr: ErrUserLimitReached,
		},
		{
			name:   "per-user limit honours configured value",
			coupon: active(Coupon{Code: "THRICE", UserLimit: 3}),
			cart:   cart,
			items:  items,
			used:   UsageCounts{ByUser: 2},
		},
		{
			name:    "minimum purchase not met",
			coupon:  active(Coupon{Code: "MIN", MinPurchase: decimal.NewFromInt(150)}),
			cart:    cart,
			items:   items,
			wantErr: &MinPurchaseError{Minimum: decimal.NewFromInt(150)},
		},
		{
			name:   "minimum purchase met exactly",
			coupon: active(Coupon{Code: "MIN", MinPurchase: decimal.NewFromInt(100)}),
			cart:   cart,
			items:  items,
		},
		{
			name:    "allow list without eligible item",
			coupon:  active(Coupon{Code: "PICKY", Products: []string{"p9"}}),
			cart:    cart,
			items:   items,
			wantErr: ErrCouponNotApplicable,
		},
		{
			name:   "allow list with eligible item",
			coupon: active(Coupon{Code: "PICKY", Products: []string{"p1", "p9"}}),
			cart:   cart,
			items:  items,
		},
		{
			name:    "every item excluded",
			coupon:  active(Coupon{Code: "NOPE", ExcludedProducts: []string{"p1"}}),
			cart:    cart,
			items:   items,
			wantErr: ErrCouponNotApplicable,
		},
		{
			name:   "exclusion leaves another item eligible",
			coupon: active(Coupon{Code: "SOME", ExcludedProducts: []string{"p1"}}),
			cart:   cart,
			items: []Item{
				{ProductID: "p1", Quantity: 1},
				{ProductID: "p2", Quantity: 1},
			},
		},
		{
			name:    "excluded item does not satisfy allow list",
			coupon:  active(Coupon{Code: "BOTH", Products: []string{"p1"}, ExcludedProducts: []string{"p1"}}),
			cart:    cart,
			items:   items,
			wantErr: ErrCouponNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.coupon, tt.cart, tt.items, tt.used, now)

			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			var mpWant *MinPurchaseError
			if errors.As(tt.wantErr, &mpWant) {
				var mpGot *MinPurchaseError
				require.ErrorAs(t, err, &mpGot)
				assert.True(t, mpWant.Minimum.Equal(mpGot.Minimum))
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheck_InactiveWinsOverOtherFailures(t *testing.T) {
	// The checks run in a fixed order; an inactive coupon reports inactive
	// even when it is also expired and over its limits.
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Coupon{
		Code:       "DEAD",
		EndsAt:     &past,
		UsageLimit: 1,
	}
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	err := Check(c, decimal.NewFromInt(10), []Item{{ProductID: "p1", Quantity: 1}},
		UsageCounts{Total: 5, ByUser: 5}, now)
	require.ErrorIs(t, err, ErrCouponInactive)
}

func TestMinPurchaseError_Message(t *testing.T) {
	err := &MinPurchaseError{Minimum: decimal.RequireFromString("49.9")}
	assert.Equal(t, "minimum purchase of 49.90 required", err.Error())
}
