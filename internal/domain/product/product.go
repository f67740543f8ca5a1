package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Price and Stock
// are authoritative here; orders snapshot name and price at creation time
// and never look them up again.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category string
	Variant  string
	Image    string
	Stock    int
}

// Repository defines read operations for the product catalog. Stock
// decrements happen only inside the order-creation transaction, via the
// order repository.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}
