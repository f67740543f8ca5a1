package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/marketlane/checkout/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	CouponCode      string             `json:"coupon_code"`
	ShippingCost    decimal.Decimal    `json:"shipping_cost"`
	Tax             decimal.Decimal    `json:"tax"`
	ShippingAddress order.Address      `json:"shipping_address"`
	BillingAddress  *order.Address     `json:"billing_address"`
	PaymentIntent   string             `json:"payment_intent"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type orderSummary struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	Total         string `json:"total"`
	PaymentIntent string `json:"paymentIntent"`
}

type orderItemView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
	Image     string `json:"image,omitempty"`
}

type statusEntryView struct {
	Status    string `json:"status"`
	Note      string `json:"note"`
	Timestamp string `json:"timestamp"`
}

type orderView struct {
	orderSummary
	UserID        string            `json:"userId"`
	Items         []orderItemView   `json:"items"`
	Subtotal      string            `json:"subtotal"`
	ShippingCost  string            `json:"shippingCost"`
	Tax           string            `json:"tax"`
	Discount      string            `json:"discount"`
	PaymentStatus string            `json:"paymentStatus"`
	CouponCode    string            `json:"couponCode,omitempty"`
	StatusHistory []statusEntryView `json:"statusHistory"`
	CreatedAt     string            `json:"createdAt"`
}

type orderCreatedResponse struct {
	Success bool         `json:"success"`
	Order   orderSummary `json:"order"`
}

type orderResponse struct {
	Success bool      `json:"success"`
	Order   orderView `json:"order"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	key := IdentityFromContext(r.Context())
	if key == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Variant:   item.Variant,
		}
	}

	o, err := h.orders.Create(r.Context(), key.UserID, order.CreateRequest{
		Items:           items,
		CouponCode:      req.CouponCode,
		ShippingCost:    req.ShippingCost,
		Tax:             req.Tax,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentIntent:   req.PaymentIntent,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, orderCreatedResponse{
		Success: true,
		Order:   summarizeOrder(o),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: viewOrder(o)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), order.Status(req.Status), req.Note)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: viewOrder(o)})
}

func summarizeOrder(o *order.Order) orderSummary {
	return orderSummary{
		ID:            o.ID,
		OrderNumber:   o.Number,
		Status:        string(o.Status),
		Total:         o.Total.StringFixed(2),
		PaymentIntent: o.PaymentIntent,
	}
}

func viewOrder(o *order.Order) orderView {
	items := make([]orderItemView, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			Variant:   item.Variant,
			Image:     item.Image,
		}
	}

	history := make([]statusEntryView, len(o.History))
	for i, entry := range o.History {
		history[i] = statusEntryView{
			Status:    string(entry.Status),
			Note:      entry.Note,
			Timestamp: entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return orderView{
		orderSummary:  summarizeOrder(o),
		UserID:        o.UserID,
		Items:         items,
		Subtotal:      o.Subtotal.StringFixed(2),
		ShippingCost:  o.ShippingCost.StringFixed(2),
		Tax:           o.Tax.StringFixed(2),
		Discount:      o.Discount.StringFixed(2),
		PaymentStatus: string(o.PaymentStatus),
		CouponCode:    o.CouponCode,
		StatusHistory: history,
		CreatedAt:     o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
