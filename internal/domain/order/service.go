package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Service encapsulates order creation from a cart snapshot.
type Service struct {
	carts   cart.Store
	catalog product.Catalog
	orders  Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(carts cart.Store, catalog product.Catalog, orders Repository) *Service {
	return &Service{
		carts:   carts,
		catalog: catalog,
		orders:  orders,
	}
}

// CreateFromCart converts the user's current cart into an immutable order.
//
// Unit prices are read from the live catalog exactly once here and recorded
// on each line item; the order total never changes afterwards, even if
// catalog prices do. The order and its items are persisted as one atomic
// write, after which the cart is cleared.
func (s *Service) CreateFromCart(ctx context.Context, userID uuid.UUID) (*Order, error) {
	snapshot, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot cart: %w", err)
	}
	if snapshot == nil || len(snapshot.Items) == 0 {
		return nil, ErrEmptyCart
	}

	orderID := uuid.New()
	items := make([]OrderItem, len(snapshot.Items))
	total := decimal.Zero
	for i, line := range snapshot.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}

		price, err := s.catalog.Price(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("price product %s: %w", line.ProductID, err)
		}

		items[i] = OrderItem{
			ID:           uuid.New(),
			OrderID:      orderID,
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			PriceAtOrder: price,
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}

	o := &Order{
		ID:         orderID,
		UserID:     userID,
		CartID:     snapshot.ID,
		Status:     StatusCreated,
		TotalPrice: total.Round(2),
		Items:      items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// The order is committed at this point; a failed clear leaves a stale
	// cart but never an inconsistent order.
	if err := s.carts.Clear(ctx, userID); err != nil {
		return nil, fmt.Errorf("clear cart after order %s: %w", o.ID, err)
	}

	return o, nil
}

// GetForUser loads an order scoped to its owner. Orders belonging to another
// user are indistinguishable from absent ones.
func (s *Service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}
