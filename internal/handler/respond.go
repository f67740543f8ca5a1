package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/marketlane/checkout/internal/domain/coupon"
	"github.com/marketlane/checkout/internal/domain/order"
)

// errorResponse is the envelope for all failed requests.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// writeDomainError maps domain failures onto HTTP statuses. Business-rule
// violations surface as 4xx with the reason as message; anything unexpected
// is logged and reported as a generic 500 so internals never leak.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr      *order.InsufficientStockError
		qtyErr        *order.InvalidQuantityError
		notFoundErr   *order.ProductNotFoundError
		transitionErr *order.InvalidTransitionError
		minErr        *coupon.MinPurchaseError
	)

	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusConflict, stockErr.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusBadRequest, transitionErr.Error())
	case errors.As(err, &qtyErr),
		errors.As(err, &notFoundErr),
		errors.As(err, &minErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponInactive),
		errors.Is(err, coupon.ErrCouponNotYetValid),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrUserLimitReached),
		errors.Is(err, coupon.ErrCouponNotApplicable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
