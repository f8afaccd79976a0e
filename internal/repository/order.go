package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, cart_id, status, total_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, price_at_order)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderSQL = `SELECT id, user_id, cart_id, status, total_price, created_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price_at_order
		FROM order_items WHERE order_id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	listStaleOrdersSQL = `SELECT id, user_id, cart_id, status, total_price, created_at
		FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order %q: %w", o.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	err = tx.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, o.CartID, o.Status, o.TotalPrice,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, createOrderItemSQL,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.PriceAtOrder,
		)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", item.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order %q: %w", o.ID, err)
	}
	return nil
}

// Get loads an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.CartID, &o.Status, &o.TotalPrice, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus moves an order from one status to another as a single
// compare-and-swap. It returns order.ErrStatusConflict when the stored status
// no longer matches, and order.ErrNotFound when the order does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, from, to)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing order from a status race.
		var current order.Status
		err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking order %q status: %w", id, err)
		}
		return order.ErrStatusConflict
	}
	return nil
}

// ListByStatusOlderThan returns orders in the given status created before the
// cutoff, without items. Used by reconciliation sweeps.
func (r *OrderRepository) ListByStatusOlderThan(ctx context.Context, status order.Status, cutoff time.Time) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listStaleOrdersSQL, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing %s orders: %w", status, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var o order.Order
		err := row.Scan(&o.ID, &o.UserID, &o.CartID, &o.Status, &o.TotalPrice, &o.CreatedAt)
		return o, err
	})
}

func scanOrderItem(row pgx.CollectableRow) (order.OrderItem, error) {
	var item order.OrderItem
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtOrder)
	return item, err
}
