package cart

import (
	"context"

	"github.com/google/uuid"
)

// Item is a single line in a user's cart.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// Cart is a point-in-time snapshot of a user's cart. The ID is stable for the
// lifetime of the cart and is recorded on the order created from it.
type Cart struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Items  []Item
}

// Store defines the cart operations consumed by order creation. Cart contents
// are mutable right up until checkout; the order service takes a snapshot and
// clears the cart after the order is persisted.
type Store interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Add(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}
