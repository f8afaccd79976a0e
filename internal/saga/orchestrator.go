// Package saga coordinates the order–payment flow across the checkout and
// ledger services. The orchestrator owns order state transitions and issues
// the compensating refund on cancellation; it never touches the ledger's
// storage directly, only the gateway contract.
package saga

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Gateway is the payment boundary the orchestrator drives. Implementations
// must distinguish business rejections from transport faults in their error
// types; the orchestrator propagates both unchanged.
type Gateway interface {
	Withdraw(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) error
	Refund(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) error
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Healthy(ctx context.Context) bool
}

// Orchestrator sequences order lookup, gateway calls, and state transitions.
type Orchestrator struct {
	orders  order.Repository
	gateway Gateway
}

// NewOrchestrator creates an Orchestrator over the given order store and
// payment gateway.
func NewOrchestrator(orders order.Repository, gateway Gateway) *Orchestrator {
	return &Orchestrator{
		orders:  orders,
		gateway: gateway,
	}
}

// ProcessPayment charges the user for a CREATED order and moves it to PAID.
//
// The CREATED-only precondition makes the operation single-shot per order:
// retries against an already-PAID or CANCELLED order fail before any money
// is requested. On any gateway failure the error is propagated unchanged and
// the order stays CREATED; no partial transition is ever committed.
func (o *Orchestrator) ProcessPayment(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	ord, err := o.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != order.StatusCreated {
		return nil, &order.TransitionError{From: ord.Status, To: order.StatusPaid}
	}

	if err := o.gateway.Withdraw(ctx, userID, ord.ID, ord.TotalPrice); err != nil {
		return nil, err
	}

	if err := o.transition(ctx, ord, order.StatusPaid); err != nil {
		return nil, err
	}
	return ord, nil
}

// Cancel moves an order to CANCELLED, refunding first when money is known to
// have moved.
//
// A refund is issued only from PAID: that is the only state in which a charge
// has settled, so cancelling CREATED makes zero monetary calls, and the
// transition to CANCELLED happens only after the refund succeeds. Terminal
// states fail transition validation.
func (o *Orchestrator) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	ord, err := o.load(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	switch ord.Status {
	case order.StatusPaid:
		if err := o.gateway.Refund(ctx, userID, ord.ID, ord.TotalPrice); err != nil {
			return nil, err
		}
	case order.StatusCreated:
		// Nothing charged yet, nothing to compensate.
	default:
		return nil, &order.TransitionError{From: ord.Status, To: order.StatusCancelled}
	}

	if err := o.transition(ctx, ord, order.StatusCancelled); err != nil {
		return nil, err
	}
	return ord, nil
}

// IsBalanceSufficient reports whether the user's remote balance covers the
// order total. It is advisory: callers must not gate monetary actions on it,
// and remote failures surface as errors meaning "unknown".
func (o *Orchestrator) IsBalanceSufficient(ctx context.Context, userID, orderID uuid.UUID) (bool, error) {
	ord, err := o.load(ctx, userID, orderID)
	if err != nil {
		return false, err
	}

	balance, err := o.gateway.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(ord.TotalPrice), nil
}

// CheckHealth probes the gateway. It reports false on any error and never
// fails; the storefront uses it to decide whether to offer checkout at all.
func (o *Orchestrator) CheckHealth(ctx context.Context) bool {
	return o.gateway.Healthy(ctx)
}

func (o *Orchestrator) load(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.UserID != userID {
		return nil, order.ErrNotFound
	}
	return ord, nil
}

// transition validates the status change and commits it with a
// compare-and-swap on the previous status.
func (o *Orchestrator) transition(ctx context.Context, ord *order.Order, to order.Status) error {
	if err := order.ValidateTransition(ord.Status, to); err != nil {
		return err
	}
	if err := o.orders.UpdateStatus(ctx, ord.ID, ord.Status, to); err != nil {
		return fmt.Errorf("update order %s to %s: %w", ord.ID, to, err)
	}
	ord.Status = to
	return nil
}
