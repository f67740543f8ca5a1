package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketlane/checkout/internal/domain/coupon"
	"github.com/marketlane/checkout/internal/domain/order"
	"github.com/marketlane/checkout/internal/domain/product"
)

const (
	// Products are locked in id order so two concurrent checkouts touching
	// the same products acquire row locks in the same sequence.
	productsForUpdateSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	// The stock >= $2 guard makes the decrement safe even if a bug skipped
	// the prior availability check: the row simply does not update.
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id,
			shipping_address, billing_address,
			subtotal, shipping_cost, tax, discount, total,
			status, payment_status, payment_intent, coupon_code,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	insertOrderItemSQL = `INSERT INTO order_items
			(order_id, product_id, name, unit_price, quantity, variant, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)`

	couponForUpdateSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1) FOR UPDATE`

	appendCouponUsageSQL = `INSERT INTO coupon_usages (code, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)`

	getOrderSQL = `SELECT id, order_number, user_id,
			shipping_address, billing_address,
			subtotal, shipping_cost, tax, discount, total,
			status, payment_status, payment_intent, coupon_code,
			created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT product_id, name, unit_price, quantity, variant, image
		FROM order_items WHERE order_id = $1 ORDER BY id`

	getOrderHistorySQL = `SELECT status, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`

	casStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn inside a single database transaction. fn receives an
// order.Tx whose writes all commit or all roll back together.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

// orderTx implements order.Tx on top of a live pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) ProductsForUpdate(ctx context.Context, ids []string) (map[string]product.Product, error) {
	rows, err := t.tx.Query(ctx, productsForUpdateSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}

	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return &order.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	var billingJSON []byte
	if o.BillingAddress != nil {
		billingJSON, err = json.Marshal(o.BillingAddress)
		if err != nil {
			return fmt.Errorf("marshaling billing address: %w", err)
		}
	}

	_, err = t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID,
		shippingJSON, billingJSON,
		o.Subtotal, o.ShippingCost, o.Tax, o.Discount, o.Total,
		string(o.Status), string(o.PaymentStatus), o.PaymentIntent, o.CouponCode,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return order.ErrNumberConflict
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err = t.tx.Exec(ctx, insertOrderItemSQL,
			o.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity,
			item.Variant, item.Image,
		)
		if err != nil {
			return fmt.Errorf("creating order item for %q: %w", item.ProductID, err)
		}
	}

	for _, entry := range o.History {
		_, err = t.tx.Exec(ctx, insertHistorySQL,
			o.ID, string(entry.Status), entry.Note, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("seeding status history for order %q: %w", o.ID, err)
		}
	}

	return nil
}

func (t *orderTx) CouponForUpdate(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := t.tx.Query(ctx, couponForUpdateSQL, code)
	if err != nil {
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("locking coupon %q: %w", code, err)
	}
	return &c, nil
}

func (t *orderTx) CouponUsageCounts(ctx context.Context, code, userID string) (coupon.UsageCounts, error) {
	var counts coupon.UsageCounts
	err := t.tx.QueryRow(ctx, couponUsageCountsSQL, code, userID).
		Scan(&counts.Total, &counts.ByUser)
	if err != nil {
		return coupon.UsageCounts{}, fmt.Errorf("counting usage for coupon %q: %w", code, err)
	}
	return counts, nil
}

func (t *orderTx) AppendCouponUsage(ctx context.Context, code string, u coupon.Usage) error {
	_, err := t.tx.Exec(ctx, appendCouponUsageSQL, code, u.UserID, u.OrderID, u.UsedAt)
	if err != nil {
		return fmt.Errorf("appending usage for coupon %q: %w", code, err)
	}
	return nil
}

// GetByID loads an order with its items and full status history.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o            order.Order
		shippingJSON []byte
		billingJSON  []byte
		status       string
		payStatus    string
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.Number, &o.UserID,
		&shippingJSON, &billingJSON,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Discount, &o.Total,
		&status, &payStatus, &o.PaymentIntent, &o.CouponCode,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(payStatus)

	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address for order %q: %w", id, err)
	}
	if len(billingJSON) > 0 {
		var billing order.Address
		if err := json.Unmarshal(billingJSON, &billing); err != nil {
			return nil, fmt.Errorf("unmarshaling billing address for order %q: %w", id, err)
		}
		o.BillingAddress = &billing
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (order.Item, error) {
		var item order.Item
		err := row.Scan(&item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity,
			&item.Variant, &item.Image)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}

	historyRows, err := r.pool.Query(ctx, getOrderHistorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting history for order %q: %w", id, err)
	}
	o.History, err = pgx.CollectRows(historyRows, func(row pgx.CollectableRow) (order.StatusEntry, error) {
		var (
			entry order.StatusEntry
			s     string
		)
		err := row.Scan(&s, &entry.Note, &entry.CreatedAt)
		entry.Status = order.Status(s)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting history for order %q: %w", id, err)
	}

	return &o, nil
}

// CompareAndSetStatus atomically updates the status only if it still equals
// from, appending the history entry in the same transaction. Returns false
// when the guard does not match (the order moved concurrently).
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, from, to order.Status, entry order.StatusEntry) (bool, error) {
	var swapped bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, casStatusSQL, id, string(from), string(to), entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("updating status for order %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, insertHistorySQL, id, string(entry.Status), entry.Note, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("appending history for order %q: %w", id, err)
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// isUniqueViolation reports whether err is a unique constraint violation on
// the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == constraint
}
