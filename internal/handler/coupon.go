package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/marketlane/checkout/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code      string             `json:"code"`
	CartTotal decimal.Decimal    `json:"cart_total"`
	Items     []orderItemRequest `json:"items"`
}

type couponView struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Discount    string `json:"discount"`
	Description string `json:"description"`
}

type validateCouponResponse struct {
	Success bool       `json:"success"`
	Coupon  couponView `json:"coupon"`
}

// validateCoupon checks a code against the caller's cart without recording
// usage, returning the discount the code would currently yield. The answer
// may be stale by checkout time; order creation re-validates transactionally.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	key := IdentityFromContext(r.Context())
	if key == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	items := make([]coupon.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = coupon.Item{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	c, err := h.coupons.Validate(r.Context(), req.Code, key.UserID, req.CartTotal, items)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	d, err := coupon.Calculate(c, req.CartTotal)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Success: true,
		Coupon: couponView{
			Code:        c.Code,
			Type:        string(c.Type),
			Value:       c.Value.String(),
			Discount:    d.Amount.StringFixed(2),
			Description: c.Description,
		},
	})
}
