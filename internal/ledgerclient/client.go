// Package ledgerclient is the HTTP client for the ledger service. It is the
// network boundary of the payment saga: it applies a fixed request timeout
// and classifies every failure as either a business rejection from the ledger
// or a transport fault, so callers can react differently to the two.
package ledgerclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/kart-checkout/internal/wire"
)

// BusinessError means the ledger completed the call but rejected it, e.g.
// insufficient funds. It carries the ledger's journal row for the attempt.
type BusinessError struct {
	TransactionID uuid.UUID
	Message       string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("payment rejected: %s (transaction %s)", e.Message, e.TransactionID)
}

// UnavailableError means the call never completed: connection failure,
// timeout, or a non-application response. Nothing can be assumed about
// whether money moved.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ledger service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Config holds client settings.
type Config struct {
	// BaseURL is the ledger service root, e.g. http://ledger:8081.
	BaseURL string
	// Token, when set, is sent as a bearer credential on every request.
	Token string
	// Timeout bounds each request end to end. The zero value means 3s.
	Timeout time.Duration
}

// defaultTimeout is the fixed request timeout applied when none is configured.
const defaultTimeout = 3 * time.Second

// Client calls the ledger service. It performs no retries: retrying a
// withdrawal without consulting the settlement probe could double-charge.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. The underlying transport is instrumented with
// otelhttp so ledger calls show up in traces.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Withdraw asks the ledger to debit amount from the user for the order.
// A nil return means money moved; *BusinessError means the ledger refused;
// *UnavailableError means the outcome is unknown.
func (c *Client) Withdraw(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) error {
	return c.post(ctx, "/payment", userID, orderID, amount)
}

// Refund asks the ledger to credit amount back to the user for the order.
func (c *Client) Refund(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) error {
	return c.post(ctx, "/payment/refund", userID, orderID, amount)
}

// Balance fetches the user's current balance.
func (c *Client) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	body, err := c.get(ctx, "/payment/"+url.PathEscape(userID.String())+"/balance")
	if err != nil {
		return decimal.Decimal{}, err
	}

	var resp wire.BalanceResponse
	if err := resp.Decode(jx.DecodeBytes(body)); err != nil {
		return decimal.Decimal{}, &UnavailableError{Err: fmt.Errorf("decode balance response: %w", err)}
	}
	return resp.Balance, nil
}

// SettledWithdrawal reports whether a withdrawal for the order has settled on
// the ledger. Reconciliation uses this to detect charges that completed after
// the original call timed out.
func (c *Client) SettledWithdrawal(ctx context.Context, orderID uuid.UUID) (bool, error) {
	body, err := c.get(ctx, "/payment/order/"+url.PathEscape(orderID.String()))
	if err != nil {
		return false, err
	}

	var resp wire.SettlementResponse
	if err := resp.Decode(jx.DecodeBytes(body)); err != nil {
		return false, &UnavailableError{Err: fmt.Errorf("decode settlement response: %w", err)}
	}
	return resp.Settled, nil
}

// Healthy probes the ledger's readiness endpoint. It reports false on any
// error and never fails; callers gate checkout availability on it, nothing
// more.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/readyz", nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, path string, userID, orderID uuid.UUID, amount decimal.Decimal) error {
	reqBody := wire.PaymentRequest{
		UserID:  userID,
		OrderID: orderID,
		Amount:  amount,
	}
	e := &jx.Encoder{}
	reqBody.Encode(e)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(e.Bytes()))
	if err != nil {
		return &UnavailableError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &UnavailableError{Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var payment wire.PaymentResponse
	if err := payment.Decode(jx.DecodeBytes(body)); err != nil {
		return &UnavailableError{Err: fmt.Errorf("decode payment response: %w", err)}
	}
	if !payment.Success {
		return &BusinessError{
			TransactionID: payment.TransactionID,
			Message:       payment.Message,
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UnavailableError{Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
