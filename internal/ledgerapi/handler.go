// Package ledgerapi exposes the ledger service over HTTP. Business failures
// (insufficient funds, bad amounts) are application-level results carried in
// the response body with isSuccess=false; HTTP error codes are reserved for
// malformed requests and infrastructure faults, so clients can tell the two
// apart.
package ledgerapi

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/ledger"
	"github.com/xenking/kart-checkout/internal/wire"
)

// Service is the ledger surface the handler exposes.
type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (*ledger.Balance, error)
	Withdraw(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) (*ledger.Result, error)
	Credit(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) (*ledger.Result, error)
	SettledWithdrawal(ctx context.Context, orderID uuid.UUID) (*ledger.Transaction, error)
}

// Handler serves the payment endpoints.
type Handler struct {
	svc   Service
	token string
}

// NewHandler creates a Handler. When token is non-empty every request must
// carry it as a bearer credential.
func NewHandler(svc Service, token string) *Handler {
	return &Handler{svc: svc, token: token}
}

// Routes registers the payment endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payment", h.auth(h.withdraw))
	mux.HandleFunc("POST /payment/refund", h.auth(h.refund))
	mux.HandleFunc("GET /payment/{user}/balance", h.auth(h.balance))
	mux.HandleFunc("GET /payment/order/{order}", h.auth(h.settlement))
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.applyPayment(w, r, h.svc.Withdraw)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	h.applyPayment(w, r, h.svc.Credit)
}

func (h *Handler) applyPayment(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, userID, orderID uuid.UUID, amount decimal.Decimal) (*ledger.Result, error),
) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	var req wire.PaymentRequest
	if err := req.Decode(jx.DecodeBytes(body)); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payment request")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := apply(r.Context(), req.UserID, req.OrderID, req.Amount)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &wire.PaymentResponse{
		UserID:        result.UserID,
		Success:       result.Success,
		TransactionID: result.TransactionID,
		NewBalance:    result.Balance,
		Message:       result.Message,
	})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed user uuid")
		return
	}

	balance, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, &wire.BalanceResponse{
		UserID:  balance.UserID,
		Balance: balance.Amount,
	})
}

func (h *Handler) settlement(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order uuid")
		return
	}

	tx, err := h.svc.SettledWithdrawal(r.Context(), orderID)
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound):
		writeJSON(w, http.StatusOK, &wire.SettlementResponse{OrderID: orderID})
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, &wire.SettlementResponse{
			OrderID:       orderID,
			Settled:       true,
			TransactionID: tx.ID,
			Amount:        tx.Amount,
		})
	}
}

// auth enforces the static bearer credential when one is configured.
func (h *Handler) auth(next http.HandlerFunc) http.HandlerFunc {
	if h.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("ledger request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

type encoder interface {
	Encode(e *jx.Encoder)
}

func writeJSON(w http.ResponseWriter, code int, v encoder) {
	e := &jx.Encoder{}
	v.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &wire.Error{Code: code, Message: msg})
}
