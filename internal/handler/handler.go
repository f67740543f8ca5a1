package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/marketlane/checkout/internal/domain/auth"
	"github.com/marketlane/checkout/internal/domain/coupon"
	"github.com/marketlane/checkout/internal/domain/order"
	"github.com/marketlane/checkout/internal/domain/product"
)

// OrderService is the order workflow surface the handlers depend on.
type OrderService interface {
	Create(ctx context.Context, userID string, req order.CreateRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, next order.Status, note string) (*order.Order, error)
}

// CouponValidator is the read-only coupon validation surface.
type CouponValidator interface {
	Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal, items []coupon.Item) (*coupon.Coupon, error)
}

// Handler serves the checkout HTTP API, delegating business logic to the
// injected domain services.
type Handler struct {
	orders   OrderService
	coupons  CouponValidator
	products product.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders OrderService, coupons CouponValidator, products product.Repository) *Handler {
	return &Handler{
		orders:   orders,
		coupons:  coupons,
		products: products,
	}
}

// Routes builds the API route table. Every route is authenticated; status
// transitions additionally require the admin scope.
func (h *Handler) Routes(a *Auth) http.Handler {
	mux := http.NewServeMux()

	write := a.Require(auth.ScopeOrdersWrite)
	admin := a.Require(auth.ScopeOrdersAdmin)

	mux.Handle("POST /api/orders", write(http.HandlerFunc(h.createOrder)))
	mux.Handle("GET /api/orders/{id}", write(http.HandlerFunc(h.getOrder)))
	mux.Handle("PUT /api/orders/{id}/status", admin(http.HandlerFunc(h.updateOrderStatus)))
	mux.Handle("POST /api/coupons/validate", write(http.HandlerFunc(h.validateCoupon)))
	mux.Handle("GET /api/products", write(http.HandlerFunc(h.listProducts)))
	mux.Handle("GET /api/products/{id}", write(http.HandlerFunc(h.getProduct)))

	return mux
}
