package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock store ---

// memStore is an in-memory Store. It mirrors the database semantics the
// service relies on: lazily created balances, an append-only journal, and at
// most one COMPLETED row per (orderID, type).
type memStore struct {
	balances map[uuid.UUID]decimal.Decimal
	journal  []Transaction

	debitErr  error
	creditErr error
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (m *memStore) Balance(_ context.Context, userID uuid.UUID) (*Balance, error) {
	amount, ok := m.balances[userID]
	if !ok {
		return nil, ErrBalanceNotFound
	}
	return &Balance{UserID: userID, Amount: amount}, nil
}

func (m *memStore) EnsureBalance(_ context.Context, userID uuid.UUID, initial decimal.Decimal) (*Balance, error) {
	if _, ok := m.balances[userID]; !ok {
		m.balances[userID] = initial
	}
	return &Balance{UserID: userID, Amount: m.balances[userID]}, nil
}

func (m *memStore) RecordTransaction(_ context.Context, tx *Transaction) error {
	m.journal = append(m.journal, *tx)
	return nil
}

func (m *memStore) Debit(_ context.Context, tx *Transaction) (*Balance, error) {
	if m.debitErr != nil {
		return nil, m.debitErr
	}
	if m.hasSettled(tx.OrderID, tx.Type) {
		return nil, ErrAlreadySettled
	}
	current := m.balances[tx.UserID]
	if current.LessThan(tx.Amount) {
		return nil, ErrInsufficientFunds
	}
	m.balances[tx.UserID] = current.Sub(tx.Amount)
	m.journal = append(m.journal, *tx)
	return &Balance{UserID: tx.UserID, Amount: m.balances[tx.UserID]}, nil
}

func (m *memStore) Credit(_ context.Context, tx *Transaction) (*Balance, error) {
	if m.creditErr != nil {
		return nil, m.creditErr
	}
	if m.hasSettled(tx.OrderID, tx.Type) {
		return nil, ErrAlreadySettled
	}
	m.balances[tx.UserID] = m.balances[tx.UserID].Add(tx.Amount)
	m.journal = append(m.journal, *tx)
	return &Balance{UserID: tx.UserID, Amount: m.balances[tx.UserID]}, nil
}

func (m *memStore) SettledTransaction(_ context.Context, orderID uuid.UUID, typ TransactionType) (*Transaction, error) {
	for i := range m.journal {
		tx := m.journal[i]
		if tx.OrderID == orderID && tx.Type == typ && tx.Status == StatusCompleted {
			return &tx, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *memStore) hasSettled(orderID uuid.UUID, typ TransactionType) bool {
	_, err := m.SettledTransaction(context.Background(), orderID, typ)
	return err == nil
}

// --- Helpers ---

func newTestService(store *memStore) *Service {
	return NewService(store, decimal.RequireFromString("1000.00"))
}

// --- Tests ---

func TestBalance_LazilyCreated(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID := uuid.New()

	b, err := svc.Balance(context.Background(), userID)

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(b.Amount))

	// A second read returns the same balance, not another grant.
	b2, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(b2.Amount))
}

func TestWithdraw_Success(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	res, err := svc.Withdraw(context.Background(), userID, orderID, decimal.RequireFromString("250.00"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEqual(t, uuid.Nil, res.TransactionID)
	assert.True(t, decimal.RequireFromString("750.00").Equal(res.Balance))
	require.Len(t, store.journal, 1)
	assert.Equal(t, StatusCompleted, store.journal[0].Status)
	assert.Equal(t, TypeWithdrawal, store.journal[0].Type)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	res, err := svc.Withdraw(context.Background(), userID, orderID, decimal.RequireFromString("1000.01"))

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient funds", res.Message)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(res.Balance),
		"balance must be unchanged on a failed withdrawal")

	// The failed attempt still journals exactly one row.
	require.Len(t, store.journal, 1)
	assert.Equal(t, StatusFailed, store.journal[0].Status)
	assert.Equal(t, "insufficient funds", store.journal[0].Message)
}

func TestWithdraw_NonPositiveAmount(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.RequireFromString("-5.00")} {
		res, err := svc.Withdraw(context.Background(), userID, orderID, amount)

		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "amount must be positive", res.Message)
	}

	// One FAILED row per attempt, no COMPLETED rows.
	require.Len(t, store.journal, 2)
	for _, tx := range store.journal {
		assert.Equal(t, StatusFailed, tx.Status)
	}
}

func TestWithdraw_ExactBalance(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	res, err := svc.Withdraw(context.Background(), userID, orderID, decimal.RequireFromString("1000.00"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Balance.IsZero())
}

func TestWithdraw_IdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()
	amount := decimal.RequireFromString("100.00")

	first, err := svc.Withdraw(context.Background(), userID, orderID, amount)
	require.NoError(t, err)
	require.True(t, first.Success)

	// Replaying the same order key must not move money again.
	second, err := svc.Withdraw(context.Background(), userID, orderID, amount)

	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, decimal.RequireFromString("900.00").Equal(second.Balance))
	assert.Len(t, store.journal, 1, "a replay must not add journal rows")
}

func TestWithdraw_RaceLoserResolvesToWinner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()
	amount := decimal.RequireFromString("100.00")

	// Settle the key behind the service's back, after the pre-check would have
	// run: the store reports ErrAlreadySettled on the write path.
	winner := &Transaction{
		ID:      uuid.New(),
		UserID:  userID,
		OrderID: orderID,
		Amount:  amount,
		Type:    TypeWithdrawal,
		Status:  StatusCompleted,
	}
	store.balances[userID] = decimal.RequireFromString("900.00")
	store.journal = append(store.journal, *winner)
	store.debitErr = ErrAlreadySettled

	res, err := svc.Withdraw(context.Background(), userID, orderID, amount)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, winner.ID, res.TransactionID)
}

func TestCredit_Success(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	res, err := svc.Credit(context.Background(), userID, orderID, decimal.RequireFromString("40.00"))

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, decimal.RequireFromString("1040.00").Equal(res.Balance))
	require.Len(t, store.journal, 1)
	assert.Equal(t, TypeRefund, store.journal[0].Type)
	assert.Equal(t, StatusCompleted, store.journal[0].Status)
}

func TestCredit_IdempotentReplay(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()
	amount := decimal.RequireFromString("40.00")

	first, err := svc.Credit(context.Background(), userID, orderID, amount)
	require.NoError(t, err)

	second, err := svc.Credit(context.Background(), userID, orderID, amount)

	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, decimal.RequireFromString("1040.00").Equal(second.Balance),
		"a replayed refund must not credit twice")
}

func TestWithdrawThenRefund_IndependentKeys(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()
	amount := decimal.RequireFromString("300.00")

	w, err := svc.Withdraw(context.Background(), userID, orderID, amount)
	require.NoError(t, err)
	require.True(t, w.Success)

	// The refund settles under its own (orderID, REFUND) key.
	r, err := svc.Credit(context.Background(), userID, orderID, amount)
	require.NoError(t, err)
	require.True(t, r.Success)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(r.Balance))
	assert.Len(t, store.journal, 2)
}

func TestSettledWithdrawal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	userID, orderID := uuid.New(), uuid.New()

	_, err := svc.SettledWithdrawal(context.Background(), orderID)
	require.ErrorIs(t, err, ErrTransactionNotFound)

	res, err := svc.Withdraw(context.Background(), userID, orderID, decimal.RequireFromString("10.00"))
	require.NoError(t, err)

	tx, err := svc.SettledWithdrawal(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, res.TransactionID, tx.ID)
	assert.Equal(t, StatusCompleted, tx.Status)
}
