package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       uuid.UUID
	Name     string
	Price    decimal.Decimal
	Category string
}

// Catalog defines read operations for the product catalog. Order creation
// calls Price exactly once per line item to freeze the unit price; later
// catalog changes never affect an existing order.
type Catalog interface {
	List(ctx context.Context) ([]Product, error)
	Price(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}
