package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketlane/checkout/internal/domain/coupon"
)

const (
	couponColumns = `code, type, value, description, min_purchase, max_discount,
		usage_limit, user_limit, starts_at, ends_at, active, products, excluded_products`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1)`

	couponUsageCountsSQL = `SELECT COUNT(*), COUNT(*) FILTER (WHERE user_id = $2)
		FROM coupon_usages WHERE code = UPPER($1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// It is read-only: usage records are appended only by the order-creation
// transaction in OrderRepository.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (matched case-insensitively,
// codes are stored uppercase). Returns coupon.ErrInvalidCoupon when the code
// does not exist.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// UsageCounts derives global and per-user redemption counts from the
// append-only usage log. Counts are never stored separately.
func (r *CouponRepository) UsageCounts(ctx context.Context, code, userID string) (coupon.UsageCounts, error) {
	var counts coupon.UsageCounts
	err := r.pool.QueryRow(ctx, couponUsageCountsSQL, code, userID).
		Scan(&counts.Total, &counts.ByUser)
	if err != nil {
		return coupon.UsageCounts{}, fmt.Errorf("counting usage for coupon %q: %w", code, err)
	}
	return counts, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c        coupon.Coupon
		typ      string
		startsAt *time.Time
		endsAt   *time.Time
	)
	err := row.Scan(
		&c.Code, &typ, &c.Value, &c.Description, &c.MinPurchase, &c.MaxDiscount,
		&c.UsageLimit, &c.UserLimit, &startsAt, &endsAt, &c.Active,
		&c.Products, &c.ExcludedProducts,
	)
	c.Type = coupon.Type(typ)
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	return c, err
}
