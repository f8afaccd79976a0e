//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/ledger"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

func productFixture(id uuid.UUID) *product.Product {
	return &product.Product{
		ID:       id,
		Name:     "Waffle with Berries",
		Price:    decimal.RequireFromString("6.50"),
		Category: "Waffle",
	}
}

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("kart_test"),
		tcpostgres.WithUsername("kart"),
		tcpostgres.WithPassword("kart"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool, db.CheckoutSchema))
	require.NoError(t, RunMigrations(ctx, pool, db.LedgerSchema))
	return pool
}

func completedTx(userID, orderID uuid.UUID, amount string, typ ledger.TransactionType) *ledger.Transaction {
	return &ledger.Transaction{
		ID:      uuid.New(),
		UserID:  userID,
		OrderID: orderID,
		Amount:  decimal.RequireFromString(amount),
		Type:    typ,
		Status:  ledger.StatusCompleted,
	}
}

func TestLedgerStore_EnsureBalance(t *testing.T) {
	pool := newTestPool(t)
	store := NewLedgerStore(pool)
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.Balance(ctx, userID)
	require.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	b, err := store.EnsureBalance(ctx, userID, decimal.RequireFromString("1000.00"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(b.Amount))

	// A second ensure must not reset the balance.
	_, err = store.Debit(ctx, completedTx(userID, uuid.New(), "100.00", ledger.TypeWithdrawal))
	require.NoError(t, err)

	b, err = store.EnsureBalance(ctx, userID, decimal.RequireFromString("1000.00"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("900.00").Equal(b.Amount))
}

func TestLedgerStore_DebitInsufficientFunds(t *testing.T) {
	pool := newTestPool(t)
	store := NewLedgerStore(pool)
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.EnsureBalance(ctx, userID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)

	_, err = store.Debit(ctx, completedTx(userID, uuid.New(), "50.01", ledger.TypeWithdrawal))
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Neither the balance nor the journal changed.
	b, err := store.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.00").Equal(b.Amount))
}

func TestLedgerStore_SettledKeyIsUnique(t *testing.T) {
	pool := newTestPool(t)
	store := NewLedgerStore(pool)
	ctx := context.Background()
	userID, orderID := uuid.New(), uuid.New()

	_, err := store.EnsureBalance(ctx, userID, decimal.RequireFromString("1000.00"))
	require.NoError(t, err)

	_, err = store.Debit(ctx, completedTx(userID, orderID, "100.00", ledger.TypeWithdrawal))
	require.NoError(t, err)

	// A second COMPLETED withdrawal for the same order trips the partial
	// unique index, not a double debit.
	_, err = store.Debit(ctx, completedTx(userID, orderID, "100.00", ledger.TypeWithdrawal))
	require.ErrorIs(t, err, ledger.ErrAlreadySettled)

	b, err := store.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("900.00").Equal(b.Amount))

	// FAILED rows for the same key are still allowed; the index only guards
	// COMPLETED settlements.
	failed := completedTx(userID, orderID, "100.00", ledger.TypeWithdrawal)
	failed.Status = ledger.StatusFailed
	failed.Message = "insufficient funds"
	require.NoError(t, store.RecordTransaction(ctx, failed))
}

func TestLedgerStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	pool := newTestPool(t)
	store := NewLedgerStore(pool)
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.EnsureBalance(ctx, userID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)

	// 20 concurrent withdrawals of 30.00 against a balance of 100.00: at most
	// 3 can succeed, and the final balance must be exact.
	const workers = 20
	results := make(chan error, workers)
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			_, err := store.Debit(gctx, completedTx(userID, uuid.New(), "30.00", ledger.TypeWithdrawal))
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 3, succeeded)

	b, err := store.Balance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(b.Amount),
		"balance must end exactly at 100 - 3*30")
	assert.False(t, b.Amount.IsNegative())
}

func TestLedgerStore_CreditAndSettlementLookup(t *testing.T) {
	pool := newTestPool(t)
	store := NewLedgerStore(pool)
	ctx := context.Background()
	userID, orderID := uuid.New(), uuid.New()

	_, err := store.EnsureBalance(ctx, userID, decimal.RequireFromString("0.00"))
	require.NoError(t, err)

	_, err = store.SettledTransaction(ctx, orderID, ledger.TypeRefund)
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	credit := completedTx(userID, orderID, "25.00", ledger.TypeRefund)
	b, err := store.Credit(ctx, credit)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.00").Equal(b.Amount))

	settled, err := store.SettledTransaction(ctx, orderID, ledger.TypeRefund)
	require.NoError(t, err)
	assert.Equal(t, credit.ID, settled.ID)
	assert.False(t, settled.CreatedAt.IsZero())
}

func TestOrderRepository_StatusCAS(t *testing.T) {
	pool := newTestPool(t)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)
	ctx := context.Background()

	productID := uuid.New()
	require.NoError(t, products.Upsert(ctx, productFixture(productID)))

	o := &order.Order{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		CartID:     uuid.New(),
		Status:     order.StatusCreated,
		TotalPrice: decimal.RequireFromString("13.00"),
		Items: []order.OrderItem{{
			ID:           uuid.New(),
			ProductID:    productID,
			Quantity:     2,
			PriceAtOrder: decimal.RequireFromString("6.50"),
		}},
	}
	o.Items[0].OrderID = o.ID
	require.NoError(t, orders.Create(ctx, o))

	require.NoError(t, orders.UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusPaid))

	// The expected status no longer matches: CAS loses.
	err := orders.UpdateStatus(ctx, o.ID, order.StatusCreated, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	err = orders.UpdateStatus(ctx, uuid.New(), order.StatusCreated, order.StatusPaid)
	require.ErrorIs(t, err, order.ErrNotFound)

	got, err := orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	require.Len(t, got.Items, 1)
	assert.True(t, decimal.RequireFromString("6.50").Equal(got.Items[0].PriceAtOrder))
}

func TestOrderRepository_ListByStatusOlderThan(t *testing.T) {
	pool := newTestPool(t)
	products := NewProductRepository(pool)
	orders := NewOrderRepository(pool)
	ctx := context.Background()

	productID := uuid.New()
	require.NoError(t, products.Upsert(ctx, productFixture(productID)))

	o := &order.Order{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		CartID:     uuid.New(),
		Status:     order.StatusCreated,
		TotalPrice: decimal.RequireFromString("6.50"),
		Items: []order.OrderItem{{
			ID:           uuid.New(),
			ProductID:    productID,
			Quantity:     1,
			PriceAtOrder: decimal.RequireFromString("6.50"),
		}},
	}
	o.Items[0].OrderID = o.ID
	require.NoError(t, orders.Create(ctx, o))

	// A cutoff in the future captures the fresh order; one in the past does not.
	stale, err := orders.ListByStatusOlderThan(ctx, order.StatusCreated, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, o.ID, stale[0].ID)

	stale, err = orders.ListByStatusOlderThan(ctx, order.StatusCreated, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
