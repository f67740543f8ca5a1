package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/marketlane/checkout/internal/domain/product"
)

type productView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Image    string `json:"image,omitempty"`
	Stock    int    `json:"stock"`
}

type productListResponse struct {
	Success  bool          `json:"success"`
	Products []productView `json:"products"`
}

type productResponse struct {
	Success bool        `json:"success"`
	Product productView `json:"product"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	views := make([]productView, len(products))
	for i, p := range products {
		views[i] = viewProduct(&p)
	}
	writeJSON(w, http.StatusOK, productListResponse{Success: true, Products: views})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse{Success: true, Product: viewProduct(p)})
}

func viewProduct(p *product.Product) productView {
	return productView{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.StringFixed(2),
		Category: p.Category,
		Variant:  p.Variant,
		Image:    p.Image,
		Stock:    p.Stock,
	}
}
