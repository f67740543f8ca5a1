package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/marketlane/checkout/internal/domain/coupon"
	"github.com/marketlane/checkout/internal/domain/product"
)

// Sentinel errors for order validation and lookup.
var (
	ErrEmptyItems = errors.New("items required")
	ErrNotFound   = errors.New("order not found")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a line item requested more units than the
// catalog has available. The whole order fails; nothing is written.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Item is an order line item. Name and unit price are snapshotted from the
// catalog at creation time and never re-resolved.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Variant   string          `json:"variant,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// Address is a postal address snapshot embedded in the order.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// StatusEntry is one record in the order's append-only status history.
type StatusEntry struct {
	Status    Status
	Note      string
	CreatedAt time.Time
}

// Order is a persisted purchase record. Monetary fields are derived at
// creation and immutable afterwards; the invariant
// Total = Subtotal + ShippingCost + Tax - Discount always holds.
type Order struct {
	ID     string
	Number string
	UserID string

	Items           []Item
	ShippingAddress Address
	BillingAddress  *Address

	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal

	Status        Status
	PaymentStatus PaymentStatus
	PaymentIntent string
	CouponCode    string

	History []StatusEntry

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tx is the set of storage operations available inside the order-creation
// transaction. Implementations must make all operations part of one atomic
// unit: either every write commits or none do.
type Tx interface {
	// ProductsForUpdate loads and row-locks the given products, keyed by ID.
	// Implementations lock in a deterministic order to avoid deadlocks
	// between concurrent checkouts.
	ProductsForUpdate(ctx context.Context, ids []string) (map[string]product.Product, error)
	// DecrementStock subtracts qty units, guarded so stock never drops below
	// zero. Returns InsufficientStockError if the guard fails.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// InsertOrder persists the order together with its items and the seed
	// status history entry.
	InsertOrder(ctx context.Context, o *Order) error
	// CouponForUpdate loads and row-locks the coupon, serializing concurrent
	// redemptions of the same code. Returns coupon.ErrInvalidCoupon when the
	// code does not exist.
	CouponForUpdate(ctx context.Context, code string) (*coupon.Coupon, error)
	// CouponUsageCounts derives usage counts from the append-only usage log.
	CouponUsageCounts(ctx context.Context, code, userID string) (coupon.UsageCounts, error)
	// AppendCouponUsage appends one redemption record to the usage log.
	AppendCouponUsage(ctx context.Context, code string, u coupon.Usage) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// CompareAndSetStatus atomically moves the order from one status to
	// another and appends a history entry, returning false when the order's
	// current status no longer matches from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, entry StatusEntry) (bool, error)
}
