package ledgerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/ledger"
)

// --- Mock service ---

type mockService struct {
	balance     *ledger.Balance
	balanceErr  error
	result      *ledger.Result
	resultErr   error
	settled     *ledger.Transaction
	settledErr  error
	lastOrderID uuid.UUID
	lastType    string
}

func (m *mockService) Balance(_ context.Context, _ uuid.UUID) (*ledger.Balance, error) {
	return m.balance, m.balanceErr
}

func (m *mockService) Withdraw(_ context.Context, _, orderID uuid.UUID, _ decimal.Decimal) (*ledger.Result, error) {
	m.lastOrderID = orderID
	m.lastType = "withdraw"
	return m.result, m.resultErr
}

func (m *mockService) Credit(_ context.Context, _, orderID uuid.UUID, _ decimal.Decimal) (*ledger.Result, error) {
	m.lastOrderID = orderID
	m.lastType = "credit"
	return m.result, m.resultErr
}

func (m *mockService) SettledWithdrawal(_ context.Context, orderID uuid.UUID) (*ledger.Transaction, error) {
	m.lastOrderID = orderID
	return m.settled, m.settledErr
}

// --- Helpers ---

func newServer(t *testing.T, svc Service, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(svc, token).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func paymentBody(userID, orderID uuid.UUID, amount string) string {
	return fmt.Sprintf(`{"userUuid":%q,"orderUuid":%q,"amount":%s}`, userID, orderID, amount)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// --- Tests ---

func TestPayment_Success(t *testing.T) {
	userID, orderID, txID := uuid.New(), uuid.New(), uuid.New()
	svc := &mockService{result: &ledger.Result{
		UserID:        userID,
		TransactionID: txID,
		Success:       true,
		Balance:       decimal.RequireFromString("900.10"),
	}}
	srv := newServer(t, svc, "")

	resp, err := http.Post(srv.URL+"/payment", "application/json",
		strings.NewReader(paymentBody(userID, orderID, "99.90")))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["isSuccess"])
	assert.Equal(t, txID.String(), body["transactionUuid"])
	assert.Equal(t, 900.1, body["newBalance"])
	assert.Equal(t, "withdraw", svc.lastType)
	assert.Equal(t, orderID, svc.lastOrderID)
}

func TestPayment_BusinessFailureIs200(t *testing.T) {
	userID := uuid.New()
	svc := &mockService{result: &ledger.Result{
		UserID:        userID,
		TransactionID: uuid.New(),
		Success:       false,
		Balance:       decimal.RequireFromString("10.00"),
		Message:       "insufficient funds",
	}}
	srv := newServer(t, svc, "")

	resp, err := http.Post(srv.URL+"/payment", "application/json",
		strings.NewReader(paymentBody(userID, uuid.New(), "99.90")))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode,
		"business rejections are results, not HTTP errors")
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["isSuccess"])
	assert.Equal(t, "insufficient funds", body["message"])
}

func TestPayment_MalformedBody(t *testing.T) {
	srv := newServer(t, &mockService{}, "")

	resp, err := http.Post(srv.URL+"/payment", "application/json", strings.NewReader("{not json"))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPayment_MissingIdentifiers(t *testing.T) {
	srv := newServer(t, &mockService{}, "")

	resp, err := http.Post(srv.URL+"/payment", "application/json",
		strings.NewReader(paymentBody(uuid.Nil, uuid.New(), "10.00")))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Contains(t, body["message"], "userUuid")
}

func TestRefund_RoutesToCredit(t *testing.T) {
	userID := uuid.New()
	svc := &mockService{result: &ledger.Result{
		UserID:        userID,
		TransactionID: uuid.New(),
		Success:       true,
		Balance:       decimal.RequireFromString("100.00"),
	}}
	srv := newServer(t, svc, "")

	resp, err := http.Post(srv.URL+"/payment/refund", "application/json",
		strings.NewReader(paymentBody(userID, uuid.New(), "5.00")))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, "credit", svc.lastType)
}

func TestBalance(t *testing.T) {
	userID := uuid.New()
	svc := &mockService{balance: &ledger.Balance{
		UserID: userID,
		Amount: decimal.RequireFromString("123.45"),
	}}
	srv := newServer(t, svc, "")

	resp, err := http.Get(srv.URL + "/payment/" + userID.String() + "/balance")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, userID.String(), body["userUuid"])
	assert.Equal(t, 123.45, body["balance"])
}

func TestBalance_MalformedUUID(t *testing.T) {
	srv := newServer(t, &mockService{}, "")

	resp, err := http.Get(srv.URL + "/payment/not-a-uuid/balance")

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSettlement_Settled(t *testing.T) {
	orderID, txID := uuid.New(), uuid.New()
	svc := &mockService{settled: &ledger.Transaction{
		ID:      txID,
		OrderID: orderID,
		Amount:  decimal.RequireFromString("50.00"),
		Type:    ledger.TypeWithdrawal,
		Status:  ledger.StatusCompleted,
	}}
	srv := newServer(t, svc, "")

	resp, err := http.Get(srv.URL + "/payment/order/" + orderID.String())

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, txID.String(), body["transactionUuid"])
}

func TestSettlement_NotSettled(t *testing.T) {
	svc := &mockService{settledErr: ledger.ErrTransactionNotFound}
	srv := newServer(t, svc, "")

	resp, err := http.Get(srv.URL + "/payment/order/" + uuid.New().String())

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["settled"])
}

func TestAuth_MissingToken(t *testing.T) {
	srv := newServer(t, &mockService{}, "secret")

	resp, err := http.Post(srv.URL+"/payment", "application/json",
		strings.NewReader(paymentBody(uuid.New(), uuid.New(), "1.00")))

	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAuth_ValidToken(t *testing.T) {
	svc := &mockService{result: &ledger.Result{
		UserID:        uuid.New(),
		TransactionID: uuid.New(),
		Success:       true,
		Balance:       decimal.Zero,
	}}
	srv := newServer(t, svc, "secret")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/payment",
		strings.NewReader(paymentBody(uuid.New(), uuid.New(), "1.00")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
