package ledger

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Failure messages recorded on FAILED journal rows.
const (
	msgNonPositiveAmount = "amount must be positive"
	msgInsufficientFunds = "insufficient funds"
)

// Result is the outcome of a debit or credit attempt. Success is false for
// business failures (validation, insufficient funds); those still produce a
// journal row, whose ID is carried in TransactionID.
type Result struct {
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Success       bool
	Balance       decimal.Decimal
	Message       string
}

// Service validates amounts and applies debits and credits against the store.
// Every call journals exactly once, except idempotent re-settles which reuse
// the existing COMPLETED row.
type Service struct {
	store          Store
	initialBalance decimal.Decimal
}

// NewService creates a ledger Service. initialBalance is the amount granted
// to a user's balance on first access; this is the single place defaults
// originate.
func NewService(store Store, initialBalance decimal.Decimal) *Service {
	return &Service{
		store:          store,
		initialBalance: initialBalance,
	}
}

// Balance returns the user's balance, lazily creating it with the configured
// initial amount on first access.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	return s.store.EnsureBalance(ctx, userID, s.initialBalance)
}

// Withdraw debits amount from the user's balance for the given order.
//
// The (orderID, WITHDRAWAL) key settles at most once: a repeated call for an
// already-settled order returns the original transaction without moving money
// again. Validation and insufficient-funds failures return a non-success
// Result with the balance unchanged.
func (s *Service) Withdraw(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) (*Result, error) {
	return s.apply(ctx, userID, orderID, amount, TypeWithdrawal)
}

// Credit returns amount to the user's balance for the given order (the refund
// path). Credits for a positive amount always succeed; the idempotency key is
// (orderID, REFUND).
func (s *Service) Credit(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) (*Result, error) {
	return s.apply(ctx, userID, orderID, amount, TypeRefund)
}

// SettledWithdrawal reports the COMPLETED withdrawal for an order, if one
// exists. Used by reconciliation to detect charges that settled after the
// caller timed out.
func (s *Service) SettledWithdrawal(ctx context.Context, orderID uuid.UUID) (*Transaction, error) {
	return s.store.SettledTransaction(ctx, orderID, TypeWithdrawal)
}

func (s *Service) apply(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal, typ TransactionType) (*Result, error) {
	if !amount.IsPositive() {
		return s.fail(ctx, userID, orderID, amount, typ, msgNonPositiveAmount)
	}

	// Short-circuit an already-settled order key before touching the balance.
	if existing, err := s.store.SettledTransaction(ctx, orderID, typ); err == nil {
		return s.settled(ctx, userID, existing)
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, fmt.Errorf("lookup settled %s for order %s: %w", typ, orderID, err)
	}

	// Lazy-create the balance row so Debit/Credit always find one to lock.
	if _, err := s.store.EnsureBalance(ctx, userID, s.initialBalance); err != nil {
		return nil, fmt.Errorf("ensure balance for user %s: %w", userID, err)
	}

	tx := &Transaction{
		ID:      uuid.New(),
		UserID:  userID,
		OrderID: orderID,
		Amount:  amount,
		Type:    typ,
		Status:  StatusCompleted,
	}

	var (
		balance *Balance
		err     error
	)
	switch typ {
	case TypeWithdrawal:
		balance, err = s.store.Debit(ctx, tx)
	case TypeRefund:
		balance, err = s.store.Credit(ctx, tx)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", typ)
	}

	switch {
	case err == nil:
		return &Result{
			UserID:        userID,
			TransactionID: tx.ID,
			Success:       true,
			Balance:       balance.Amount,
		}, nil
	case errors.Is(err, ErrInsufficientFunds):
		return s.fail(ctx, userID, orderID, amount, typ, msgInsufficientFunds)
	case errors.Is(err, ErrAlreadySettled):
		// Lost the race against a concurrent settle for the same key; resolve
		// to the row that won.
		existing, lookupErr := s.store.SettledTransaction(ctx, orderID, typ)
		if lookupErr != nil {
			return nil, fmt.Errorf("resolve settled %s for order %s: %w", typ, orderID, lookupErr)
		}
		return s.settled(ctx, userID, existing)
	default:
		return nil, fmt.Errorf("apply %s for order %s: %w", typ, orderID, err)
	}
}

// fail journals a FAILED attempt and returns a non-success Result with the
// current balance. No money moves on this path, but the row is still written:
// the journal records every attempt, not only mutations.
func (s *Service) fail(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal, typ TransactionType, msg string) (*Result, error) {
	tx := &Transaction{
		ID:      uuid.New(),
		UserID:  userID,
		OrderID: orderID,
		Amount:  amount,
		Type:    typ,
		Status:  StatusFailed,
		Message: msg,
	}
	if err := s.store.RecordTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("journal failed %s for order %s: %w", typ, orderID, err)
	}

	balance, err := s.store.EnsureBalance(ctx, userID, s.initialBalance)
	if err != nil {
		return nil, fmt.Errorf("ensure balance for user %s: %w", userID, err)
	}

	return &Result{
		UserID:        userID,
		TransactionID: tx.ID,
		Success:       false,
		Balance:       balance.Amount,
		Message:       msg,
	}, nil
}

// settled returns a success Result backed by an existing COMPLETED row.
func (s *Service) settled(ctx context.Context, userID uuid.UUID, tx *Transaction) (*Result, error) {
	balance, err := s.store.EnsureBalance(ctx, userID, s.initialBalance)
	if err != nil {
		return nil, fmt.Errorf("ensure balance for user %s: %w", userID, err)
	}
	return &Result{
		UserID:        userID,
		TransactionID: tx.ID,
		Success:       true,
		Balance:       balance.Amount,
	}, nil
}
