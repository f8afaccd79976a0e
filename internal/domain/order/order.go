package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the directed transition table. DELIVERED and CANCELLED are
// terminal.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusDelivered, StatusCancelled},
	StatusDelivered: nil,
	StatusCancelled: nil,
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Sentinel errors for order lookup and creation.
var (
	ErrNotFound     = errors.New("order not found")
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInvalidTotal = errors.New("order total must be positive")

	// ErrStatusConflict is returned by Repository.UpdateStatus when the stored
	// status no longer matches the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// TransitionError indicates an attempted status change that is not in the
// transition table.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal order state transition %s -> %s", e.From, e.To)
}

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ValidateTransition checks the transition table. Every status mutation goes
// through this check; there is no code path that writes a status without it.
func ValidateTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// OrderItem is a single line item with its price frozen at order creation.
type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	Quantity     int
	PriceAtOrder decimal.Decimal
}

// Order is the immutable record of a checkout. Only Status changes after
// creation; items and total are frozen. Orders are never deleted.
type Order struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CartID     uuid.UUID
	Status     Status
	TotalPrice decimal.Decimal
	Items      []OrderItem
	CreatedAt  time.Time
}

// Repository defines persistence operations for orders.
//
// UpdateStatus is a compare-and-swap: it moves the order from the expected
// status to the target status and fails with ErrStatusConflict when the
// stored status has changed in between. Combined with ValidateTransition this
// makes concurrent double-payments and double-cancels lose cleanly.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	ListByStatusOlderThan(ctx context.Context, status Status, cutoff time.Time) ([]Order, error)
}
