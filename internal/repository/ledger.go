package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/ledger"
)

const (
	getBalanceSQL = `SELECT user_id, amount FROM balances WHERE user_id = $1`

	insertBalanceSQL = `INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	lockBalanceSQL = `SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`

	updateBalanceSQL = `UPDATE balances SET amount = $2 WHERE user_id = $1`

	insertTransactionSQL = `INSERT INTO payment_transactions (id, user_id, order_id, amount, type, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	getSettledTransactionSQL = `SELECT id, user_id, order_id, amount, type, status, message, created_at
		FROM payment_transactions
		WHERE order_id = $1 AND type = $2 AND status = 'COMPLETED'`
)

// uniqueViolation is the PostgreSQL error code raised by the partial unique
// index on settled (order_id, type) pairs.
const uniqueViolation = "23505"

var _ ledger.Store = (*LedgerStore)(nil)

// LedgerStore implements ledger.Store backed by PostgreSQL.
//
// Debit and Credit lock the user's balance row with SELECT ... FOR UPDATE, so
// the read-compare-write-journal sequence is linearizable per user: two
// concurrent withdrawals serialize, and the second sees the first's balance.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore returns a LedgerStore that uses the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Balance loads the balance row for a user.
func (s *LedgerStore) Balance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error) {
	var b ledger.Balance
	err := s.pool.QueryRow(ctx, getBalanceSQL, userID).Scan(&b.UserID, &b.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("getting balance for user %q: %w", userID, err)
	}
	return &b, nil
}

// EnsureBalance returns the user's balance, creating it with the initial
// amount when absent. The insert is conflict-free so concurrent first
// accesses cannot double-create or reset an existing balance.
func (s *LedgerStore) EnsureBalance(ctx context.Context, userID uuid.UUID, initial decimal.Decimal) (*ledger.Balance, error) {
	_, err := s.pool.Exec(ctx, insertBalanceSQL, userID, initial)
	if err != nil {
		return nil, fmt.Errorf("creating balance for user %q: %w", userID, err)
	}
	return s.Balance(ctx, userID)
}

// RecordTransaction appends a standalone journal row.
func (s *LedgerStore) RecordTransaction(ctx context.Context, tx *ledger.Transaction) error {
	err := s.pool.QueryRow(ctx, insertTransactionSQL,
		tx.ID, tx.UserID, tx.OrderID, tx.Amount, tx.Type, tx.Status, tx.Message,
	).Scan(&tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAlreadySettled
		}
		return fmt.Errorf("recording transaction %q: %w", tx.ID, err)
	}
	return nil
}

// Debit subtracts tx.Amount from the user's balance and journals the
// COMPLETED row, all in one database transaction. It returns
// ledger.ErrInsufficientFunds without mutating anything when the locked
// balance cannot cover the amount, and ledger.ErrAlreadySettled when another
// transaction settled the same order key first.
func (s *LedgerStore) Debit(ctx context.Context, tx *ledger.Transaction) (*ledger.Balance, error) {
	return s.mutate(ctx, tx, func(current decimal.Decimal) (decimal.Decimal, error) {
		if current.LessThan(tx.Amount) {
			return decimal.Decimal{}, ledger.ErrInsufficientFunds
		}
		return current.Sub(tx.Amount), nil
	})
}

// Credit adds tx.Amount to the user's balance and journals the COMPLETED row
// in one database transaction.
func (s *LedgerStore) Credit(ctx context.Context, tx *ledger.Transaction) (*ledger.Balance, error) {
	return s.mutate(ctx, tx, func(current decimal.Decimal) (decimal.Decimal, error) {
		return current.Add(tx.Amount), nil
	})
}

// SettledTransaction finds the COMPLETED row for (orderID, typ). The partial
// unique index guarantees at most one such row.
func (s *LedgerStore) SettledTransaction(ctx context.Context, orderID uuid.UUID, typ ledger.TransactionType) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	err := s.pool.QueryRow(ctx, getSettledTransactionSQL, orderID, typ).Scan(
		&tx.ID, &tx.UserID, &tx.OrderID, &tx.Amount, &tx.Type, &tx.Status, &tx.Message, &tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("getting settled %s for order %q: %w", typ, orderID, err)
	}
	return &tx, nil
}

// mutate runs the lock-compute-write-journal sequence for a balance change.
// The balance update and the journal insert commit or fail together.
func (s *LedgerStore) mutate(ctx context.Context, jtx *ledger.Transaction, compute func(current decimal.Decimal) (decimal.Decimal, error)) (*ledger.Balance, error) {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s for order %q: %w", jtx.Type, jtx.OrderID, err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var current decimal.Decimal
	err = dbTx.QueryRow(ctx, lockBalanceSQL, jtx.UserID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("locking balance for user %q: %w", jtx.UserID, err)
	}

	next, err := compute(current)
	if err != nil {
		return nil, err
	}

	if _, err := dbTx.Exec(ctx, updateBalanceSQL, jtx.UserID, next); err != nil {
		return nil, fmt.Errorf("updating balance for user %q: %w", jtx.UserID, err)
	}

	err = dbTx.QueryRow(ctx, insertTransactionSQL,
		jtx.ID, jtx.UserID, jtx.OrderID, jtx.Amount, jtx.Type, jtx.Status, jtx.Message,
	).Scan(&jtx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ledger.ErrAlreadySettled
		}
		return nil, fmt.Errorf("journaling %s for order %q: %w", jtx.Type, jtx.OrderID, err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit %s for order %q: %w", jtx.Type, jtx.OrderID, err)
	}

	return &ledger.Balance{UserID: jtx.UserID, Amount: next}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
