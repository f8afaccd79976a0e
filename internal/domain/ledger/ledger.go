// Package ledger holds the balance store model and the ledger service.
//
// The ledger is the sole owner of monetary truth: every debit or credit
// attempt, successful or not, produces exactly one immutable journal row, and
// a balance mutation commits in the same database transaction as its
// COMPLETED row.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money leaving a balance from money returning.
type TransactionType string

const (
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeRefund     TransactionType = "REFUND"
)

// TransactionStatus records whether money actually moved.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Balance is the current amount held for a user. It is lazily created with a
// configured default on first access and never deleted.
type Balance struct {
	UserID uuid.UUID
	Amount decimal.Decimal
}

// Transaction is one journal row. Rows are append-only and immutable; the
// journal is the audit source of truth for every monetary event.
type Transaction struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Type      TransactionType
	Status    TransactionStatus
	Message   string
	CreatedAt time.Time
}

// Sentinel errors for store operations.
var (
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")

	// ErrAlreadySettled is returned by Debit/Credit when a COMPLETED row for
	// the same order and operation already exists. The caller resolves the
	// existing row instead of moving money twice.
	ErrAlreadySettled = errors.New("order operation already settled")
)

// Store defines durable operations over balances and the journal.
//
// Debit and Credit are atomic: the balance row is locked, checked, mutated,
// and the COMPLETED journal row inserted inside one database transaction.
// Concurrent operations against the same user serialize on the row lock, so
// a balance can never be driven negative.
type Store interface {
	Balance(ctx context.Context, userID uuid.UUID) (*Balance, error)
	EnsureBalance(ctx context.Context, userID uuid.UUID, initial decimal.Decimal) (*Balance, error)

	// RecordTransaction appends a standalone journal row. Used for FAILED
	// attempts, where no balance mutation accompanies the row.
	RecordTransaction(ctx context.Context, tx *Transaction) error

	Debit(ctx context.Context, tx *Transaction) (*Balance, error)
	Credit(ctx context.Context, tx *Transaction) (*Balance, error)

	// SettledTransaction finds the COMPLETED row for an order and operation,
	// if any. This is the idempotency lookup keyed by (orderID, type).
	SettledTransaction(ctx context.Context, orderID uuid.UUID, typ TransactionType) (*Transaction, error)
}
