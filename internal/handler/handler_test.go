package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlane/checkout/internal/domain/auth"
	"github.com/marketlane/checkout/internal/domain/coupon"
	"github.com/marketlane/checkout/internal/domain/order"
	"github.com/marketlane/checkout/internal/domain/product"
)

const (
	testPepper   = "test-pepper"
	testWriteKey = "write-key"
	testAdminKey = "admin-key"
)

// --- Fakes ---

type fakeOrderService struct {
	order     *order.Order
	createErr error
	getErr    error
	updateErr error

	gotUserID string
	gotReq    order.CreateRequest
	gotStatus order.Status
}

func (f *fakeOrderService) Create(_ context.Context, userID string, req order.CreateRequest) (*order.Order, error) {
	f.gotUserID = userID
	f.gotReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.order, nil
}

func (f *fakeOrderService) Get(_ context.Context, _ string) (*order.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.order, nil
}

func (f *fakeOrderService) UpdateStatus(_ context.Context, _ string, next order.Status, _ string) (*order.Order, error) {
	f.gotStatus = next
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.order, nil
}

type fakeCouponValidator struct {
	coupon *coupon.Coupon
	err    error
}

func (f *fakeCouponValidator) Validate(_ context.Context, _, _ string, _ decimal.Decimal, _ []coupon.Item) (*coupon.Coupon, error) {
	return f.coupon, f.err
}

type fakeProductRepo struct {
	products []product.Product
	err      error
}

func (f *fakeProductRepo) List(_ context.Context) ([]product.Product, error) {
	return f.products, f.err
}

func (f *fakeProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.products {
		if f.products[i].ID == id {
			return &f.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

type fakeKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (f *fakeKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := f.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

// --- Helpers ---

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestRouter(orders *fakeOrderService, coupons *fakeCouponValidator, products *fakeProductRepo) http.Handler {
	keys := &fakeKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		hashKey(testWriteKey): {
			ID:      "k1",
			KeyHash: hashKey(testWriteKey),
			Name:    "writer",
			UserID:  "u1",
			Scopes:  []string{auth.ScopeOrdersWrite},
		},
		hashKey(testAdminKey): {
			ID:      "k2",
			KeyHash: hashKey(testAdminKey),
			Name:    "admin",
			UserID:  "admin",
			Scopes:  []string{auth.ScopeOrdersWrite, auth.ScopeOrdersAdmin},
		},
	}}

	h := NewHandler(orders, coupons, products)
	return h.Routes(NewAuth(keys, []byte(testPepper)))
}

func doRequest(t *testing.T, router http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sampleOrder() *order.Order {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:     "ord-1",
		Number: "ORD-20250615-ABCDEF",
		UserID: "u1",
		Items: []order.Item{
			{ProductID: "p1", Name: "Widget", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
		},
		Subtotal:      decimal.RequireFromString("20.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		Tax:           decimal.RequireFromString("1.60"),
		Discount:      decimal.Zero,
		Total:         decimal.RequireFromString("26.60"),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentIntent: "pi_123",
		History: []order.StatusEntry{
			{Status: order.StatusPending, Note: "order created", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- Authentication ---

func TestAuth_MissingKey(t *testing.T) {
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodGet, "/api/products", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
}

func TestAuth_UnknownKey(t *testing.T) {
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodGet, "/api/products", "not-a-key", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InsufficientScope(t *testing.T) {
	router := newTestRouter(&fakeOrderService{order: sampleOrder()}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPut, "/api/orders/ord-1/status", testWriteKey,
		updateStatusRequest{Status: "confirmed"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient scope", body["message"])
}

func TestAuth_AdminScopeAllowsStatusUpdate(t *testing.T) {
	svc := &fakeOrderService{order: sampleOrder()}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPut, "/api/orders/ord-1/status", testAdminKey,
		updateStatusRequest{Status: "confirmed"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusConfirmed, svc.gotStatus)
}

// --- Orders ---

func TestCreateOrder_Success(t *testing.T) {
	svc := &fakeOrderService{order: sampleOrder()}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/orders", testWriteKey, createOrderRequest{
		Items:         []orderItemRequest{{ProductID: "p1", Quantity: 2}},
		PaymentIntent: "pi_123",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	o, ok := body["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ord-1", o["id"])
	assert.Equal(t, "ORD-20250615-ABCDEF", o["orderNumber"])
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, "26.60", o["total"])
	assert.Equal(t, "pi_123", o["paymentIntent"])

	// The order owner comes from the API key, never from the payload.
	assert.Equal(t, "u1", svc.gotUserID)
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, &fakeProductRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{not json"))
	req.Header.Set("api_key", testWriteKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	svc := &fakeOrderService{createErr: &order.InsufficientStockError{
		ProductID: "p1", Requested: 5, Available: 2,
	}}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/orders", testWriteKey, createOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 5}},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "insufficient stock")
}

func TestCreateOrder_InvalidCoupon(t *testing.T) {
	svc := &fakeOrderService{createErr: coupon.ErrInvalidCoupon}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/orders", testWriteKey, createOrderRequest{
		Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "BOGUS",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_UnexpectedErrorHidesInternals(t *testing.T) {
	svc := &fakeOrderService{createErr: errors.New("pq: connection refused")}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/orders", testWriteKey, createOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestGetOrder_Success(t *testing.T) {
	router := newTestRouter(&fakeOrderService{order: sampleOrder()}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodGet, "/api/orders/ord-1", testWriteKey, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	o := body["order"].(map[string]any)
	assert.Equal(t, "ord-1", o["id"])
	assert.Equal(t, "20.00", o["subtotal"])

	history, ok := o["statusHistory"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "pending", entry["status"])
	assert.Equal(t, "order created", entry["note"])
}

func TestGetOrder_NotFound(t *testing.T) {
	router := newTestRouter(&fakeOrderService{getErr: order.ErrNotFound}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodGet, "/api/orders/missing", testWriteKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	svc := &fakeOrderService{updateErr: &order.InvalidTransitionError{
		From: order.StatusPending, To: order.StatusShipped,
	}}
	router := newTestRouter(svc, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPut, "/api/orders/ord-1/status", testAdminKey,
		updateStatusRequest{Status: "shipped"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["message"], "invalid status transition from pending to shipped")
}

// --- Coupons ---

func TestValidateCoupon_Success(t *testing.T) {
	cv := &fakeCouponValidator{coupon: &coupon.Coupon{
		Code:        "SAVE20",
		Type:        coupon.TypePercentage,
		Value:       decimal.NewFromInt(20),
		Description: "20% off",
		Active:      true,
	}}
	router := newTestRouter(&fakeOrderService{}, cv, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/coupons/validate", testWriteKey,
		validateCouponRequest{
			Code:      "SAVE20",
			CartTotal: decimal.NewFromInt(100),
		})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	c := body["coupon"].(map[string]any)
	assert.Equal(t, "SAVE20", c["code"])
	assert.Equal(t, "percentage", c["type"])
	assert.Equal(t, "20.00", c["discount"])
	assert.Equal(t, "20% off", c["description"])
}

func TestValidateCoupon_EmptyCode(t *testing.T) {
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodPost, "/api/coupons/validate", testWriteKey,
		validateCouponRequest{CartTotal: decimal.NewFromInt(100)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "coupon code required", body["message"])
}

func TestValidateCoupon_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"unknown code", coupon.ErrInvalidCoupon, "invalid coupon code"},
		{"expired", coupon.ErrCouponExpired, "coupon expired"},
		{"usage limit", coupon.ErrUsageLimitReached, "coupon usage limit reached"},
		{"user limit", coupon.ErrUserLimitReached, "coupon usage limit for this user reached"},
		{"min purchase", &coupon.MinPurchaseError{Minimum: decimal.NewFromInt(50)}, "minimum purchase of 50.00 required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{err: tt.err}, &fakeProductRepo{})

			rec := doRequest(t, router, http.MethodPost, "/api/coupons/validate", testWriteKey,
				validateCouponRequest{Code: "ANY", CartTotal: decimal.NewFromInt(10)})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

// --- Products ---

func TestListProducts(t *testing.T) {
	repo := &fakeProductRepo{products: []product.Product{
		{ID: "p1", Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5},
		{ID: "p2", Name: "Gadget", Price: decimal.RequireFromString("20.00"), Stock: 0},
	}}
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, repo)

	rec := doRequest(t, router, http.MethodGet, "/api/products", testWriteKey, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	products := body["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "p1", first["id"])
	assert.Equal(t, "10.00", first["price"])
}

func TestGetProduct_NotFound(t *testing.T) {
	router := newTestRouter(&fakeOrderService{}, &fakeCouponValidator{}, &fakeProductRepo{})

	rec := doRequest(t, router, http.MethodGet, "/api/products/missing", testWriteKey, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
