// Package api exposes the storefront surface: catalog, cart, and the order
// endpoints driving the payment saga. Anonymous identity arrives as an
// X-User-ID header provisioned by the edge; this service treats it as opaque.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/ledgerclient"
	"github.com/xenking/kart-checkout/internal/saga"
)

// userHeader carries the anonymous user identity.
const userHeader = "X-User-ID"

// Handler implements the storefront endpoints.
type Handler struct {
	catalog  product.Catalog
	carts    cart.Store
	orders   *order.Service
	payments *saga.Orchestrator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	catalog product.Catalog,
	carts cart.Store,
	orders *order.Service,
	payments *saga.Orchestrator,
) *Handler {
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the storefront endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{product}", h.removeCartItem)
	mux.HandleFunc("POST /api/order", h.createOrder)
	mux.HandleFunc("GET /api/order/{id}", h.getOrder)
	mux.HandleFunc("POST /api/order/{id}/pay", h.payOrder)
	mux.HandleFunc("POST /api/order/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /api/order/{id}/balance-check", h.balanceCheck)
	mux.HandleFunc("GET /api/checkout/availability", h.checkoutAvailability)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = productResponse{
			ID:       p.ID.String(),
			Name:     p.Name,
			Price:    p.Price.String(),
			Category: p.Category,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.carts.Snapshot(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(snapshot))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed product uuid")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must be greater than 0")
		return
	}

	// Reject products the catalog does not know before they enter the cart.
	if _, err := h.catalog.Price(r.Context(), productID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if err := h.carts.Add(r.Context(), userID, productID, req.Quantity); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	productID, err := uuid.Parse(r.PathValue("product"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed product uuid")
		return
	}

	if err := h.carts.Remove(r.Context(), userID, productID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.CreateFromCart(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetForUser(r.Context(), userID, orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	o, err := h.payments.ProcessPayment(r.Context(), userID, orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	o, err := h.payments.Cancel(r.Context(), userID, orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) balanceCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	sufficient, err := h.payments.IsBalanceSufficient(r.Context(), userID, orderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceCheckResponse{Sufficient: sufficient})
}

func (h *Handler) checkoutAvailability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, availabilityResponse{
		Available: h.payments.CheckHealth(r.Context()),
	})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(userHeader))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or malformed "+userHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order uuid")
		return uuid.Nil, false
	}
	return id, true
}

// writeDomainError maps domain and gateway errors to HTTP responses. Gateway
// unavailability maps to 503 so the storefront can show "service degraded"
// instead of a hard monetary failure.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		transitionErr  *order.TransitionError
		quantityErr    *order.InvalidQuantityError
		businessErr    *ledgerclient.BusinessError
		unavailableErr *ledgerclient.UnavailableError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, "product not found")
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, order.ErrInvalidTotal):
		writeError(w, http.StatusUnprocessableEntity, "order total must be positive")
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, quantityErr.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	case errors.Is(err, order.ErrStatusConflict):
		writeError(w, http.StatusConflict, "order changed concurrently, reload and retry")
	case errors.As(err, &businessErr):
		writeJSON(w, http.StatusPaymentRequired, paymentFailureResponse{
			Message:       businessErr.Message,
			TransactionID: businessErr.TransactionID.String(),
		})
	case errors.As(err, &unavailableErr):
		writeError(w, http.StatusServiceUnavailable, "payment service unavailable, try again later")
	default:
		zctx.From(r.Context()).Error("storefront request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Code: code, Message: msg})
}
