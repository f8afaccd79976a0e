// Package worker contains background jobs for the checkout service.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// SettlementProbe answers whether a withdrawal for an order has settled on
// the ledger.
type SettlementProbe interface {
	SettledWithdrawal(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Reconciler repairs orders stranded by the timeout window: a withdrawal can
// settle on the ledger after the storefront's call timed out, leaving the
// order CREATED while the money already moved. The sweep asks the ledger for
// each stale CREATED order and promotes the settled ones to PAID.
type Reconciler struct {
	orders   order.Repository
	probe    SettlementProbe
	interval time.Duration
	minAge   time.Duration
	lg       *zap.Logger
}

// NewReconciler creates a Reconciler. minAge keeps the sweep away from
// orders still inside an in-flight payment call.
func NewReconciler(orders order.Repository, probe SettlementProbe, interval, minAge time.Duration, lg *zap.Logger) *Reconciler {
	return &Reconciler{
		orders:   orders,
		probe:    probe,
		interval: interval,
		minAge:   minAge,
		lg:       lg,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.lg.Info("reconciliation worker started",
		zap.Duration("interval", r.interval),
		zap.Duration("min_age", r.minAge),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.lg.Warn("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs a single reconciliation pass. Per-order failures are logged and
// skipped so one unreachable probe does not stall the rest of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.minAge)
	stale, err := r.orders.ListByStatusOlderThan(ctx, order.StatusCreated, cutoff)
	if err != nil {
		return err
	}

	for i := range stale {
		o := &stale[i]
		settled, err := r.probe.SettledWithdrawal(ctx, o.ID)
		if err != nil {
			r.lg.Warn("settlement probe failed",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !settled {
			continue
		}

		err = r.orders.UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusPaid)
		if err != nil {
			// A concurrent payment or cancel won the race; the next sweep
			// re-examines the order if it is still CREATED.
			r.lg.Warn("reconcile transition failed",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
			continue
		}

		r.lg.Info("reconciled settled order",
			zap.String("order_id", o.ID.String()),
			zap.String("user_id", o.UserID.String()),
			zap.String("amount", o.TotalPrice.String()),
		)
	}
	return nil
}
