package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketlane/checkout/internal/domain/coupon"
)

// ErrNumberConflict is returned by repositories when a generated order
// number collides with an existing one. The service retries with a fresh
// number.
var ErrNumberConflict = errors.New("order number already exists")

const numberRetries = 3

// Confirmation is the payload handed to the notifier after an order commits.
type Confirmation struct {
	OrderID string `json:"order_id"`
	Number  string `json:"order_number"`
	UserID  string `json:"user_id"`
	Total   string `json:"total"`
}

// Notifier enqueues an asynchronous order-confirmation job. Enqueueing is
// best effort: failures are logged by the service and never fail the order.
type Notifier interface {
	OrderConfirmed(ctx context.Context, c Confirmation) error
}

// ItemRequest is one requested line item. Name, price, and image are
// resolved from the catalog inside the transaction, not trusted from input.
type ItemRequest struct {
	ProductID string
	Quantity  int
	Variant   string
}

// CreateRequest holds the input for creating an order. ShippingCost and Tax
// are pass-through amounts computed by external collaborators, and
// PaymentIntent is the reference handed back by the payment gateway.
type CreateRequest struct {
	Items           []ItemRequest
	CouponCode      string
	ShippingCost    decimal.Decimal
	Tax             decimal.Decimal
	ShippingAddress Address
	BillingAddress  *Address
	PaymentIntent   string
}

// Service owns order creation and the status state machine.
type Service struct {
	orders   Repository
	notifier Notifier
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, notifier Notifier) *Service {
	return &Service{
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create places an order atomically: it locks and validates stock, snapshots
// catalog prices, applies the coupon under the same transaction that appends
// its usage record, decrements inventory, and persists the order with a
// seeded status history. On any failure nothing is written. After commit the
// confirmation notification is enqueued best-effort.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	var created *Order
	err := s.orders.InTx(ctx, func(tx Tx) error {
		o, err := s.buildOrder(ctx, tx, userID, req, ids)
		if err != nil {
			return err
		}

		if err := s.insertWithNumberRetry(ctx, tx, o); err != nil {
			return err
		}

		for _, item := range o.Items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if o.CouponCode != "" {
			usage := coupon.Usage{UserID: userID, OrderID: o.ID, UsedAt: o.CreatedAt}
			if err := tx.AppendCouponUsage(ctx, o.CouponCode, usage); err != nil {
				return errors.Wrap(err, "append coupon usage")
			}
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueConfirmation(ctx, created)
	return created, nil
}

// buildOrder locks products, validates stock, computes totals, and applies
// the coupon. It performs no writes.
func (s *Service) buildOrder(ctx context.Context, tx Tx, userID string, req CreateRequest, ids []string) (*Order, error) {
	products, err := tx.ProductsForUpdate(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	items := make([]Item, len(req.Items))
	couponItems := make([]coupon.Item, len(req.Items))
	subtotal := decimal.Zero
	for i, reqItem := range req.Items {
		p, ok := products[reqItem.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: reqItem.ProductID}
		}
		if reqItem.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Requested: reqItem.Quantity,
				Available: p.Stock,
			}
		}

		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  reqItem.Quantity,
			Variant:   reqItem.Variant,
			Image:     p.Image,
		}
		couponItems[i] = coupon.Item{ProductID: p.ID, Quantity: reqItem.Quantity}
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(reqItem.Quantity))))
	}

	now := s.now().UTC()
	shipping := req.ShippingCost
	discountAmount := decimal.Zero
	couponCode := ""

	if req.CouponCode != "" {
		code := coupon.NormalizeCode(req.CouponCode)

		c, err := tx.CouponForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, coupon.ErrInvalidCoupon) {
				return nil, coupon.ErrInvalidCoupon
			}
			return nil, errors.Wrap(err, "lock coupon")
		}
		used, err := tx.CouponUsageCounts(ctx, code, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usage")
		}
		// Re-validate under the row lock: the read-only validation the
		// client ran earlier may be stale by now.
		if err := coupon.Check(c, subtotal, couponItems, used, now); err != nil {
			return nil, err
		}
		d, err := coupon.Calculate(c, subtotal)
		if err != nil {
			return nil, err
		}

		discountAmount = d.Amount
		if d.Type == coupon.TypeFreeShipping {
			shipping = decimal.Zero
		}
		couponCode = code
	}

	subtotal = subtotal.Round(2)
	total := subtotal.Add(shipping).Add(req.Tax).Sub(discountAmount).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return &Order{
		ID:              uuid.New().String(),
		Number:          NewNumber(now),
		UserID:          userID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		Tax:             req.Tax,
		Discount:        discountAmount,
		Total:           total,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentIntent:   req.PaymentIntent,
		CouponCode:      couponCode,
		History: []StatusEntry{
			{Status: StatusPending, Note: "order created", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// insertWithNumberRetry regenerates the order number on a unique-index
// collision. More than a few retries means something is broken, not unlucky.
func (s *Service) insertWithNumberRetry(ctx context.Context, tx Tx, o *Order) error {
	var err error
	for range numberRetries {
		err = tx.InsertOrder(ctx, o)
		if !errors.Is(err, ErrNumberConflict) {
			break
		}
		o.Number = NewNumber(s.now().UTC())
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

// enqueueConfirmation publishes the order-confirmation job. At most one
// attempt; a failure is logged and swallowed so it can never undo or fail an
// already-committed order.
func (s *Service) enqueueConfirmation(ctx context.Context, o *Order) {
	c := Confirmation{
		OrderID: o.ID,
		Number:  o.Number,
		UserID:  o.UserID,
		Total:   o.Total.StringFixed(2),
	}
	if err := s.notifier.OrderConfirmed(ctx, c); err != nil {
		zctx.From(ctx).Warn("order confirmation enqueue failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// Get returns a single order with its items and status history.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// UpdateStatus moves an order to the next status if the state machine allows
// it, appending a history entry in the same transaction as the status write.
// This is the only way an order's status changes.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, note string) (*Order, error) {
	if !next.Valid() {
		return nil, &InvalidTransitionError{To: next}
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	entry := StatusEntry{Status: next, Note: note, CreatedAt: s.now().UTC()}
	ok, err := s.orders.CompareAndSetStatus(ctx, id, o.Status, next, entry)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	if !ok {
		// Lost a race: the order moved since we loaded it. Report against
		// the fresh status so the caller sees the real conflict.
		fresh, ferr := s.orders.GetByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &InvalidTransitionError{From: fresh.Status, To: next}
	}

	return s.orders.GetByID(ctx, id)
}
