package api

import (
	"time"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Monetary values are serialized as decimal strings to avoid float rounding
// on the storefront wire.

type productResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

type cartItemRequest struct {
	ProductID string `json:"productUuid"`
	Quantity  int    `json:"quantity"`
}

type cartItemResponse struct {
	ProductID string `json:"productUuid"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	ID    string             `json:"cartUuid"`
	Items []cartItemResponse `json:"items"`
}

type orderItemResponse struct {
	ProductID    string `json:"productUuid"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder string `json:"priceAtOrder"`
}

type orderResponse struct {
	ID         string              `json:"orderUuid"`
	Status     string              `json:"status"`
	TotalPrice string              `json:"totalPrice"`
	Items      []orderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"createdAt"`
}

type balanceCheckResponse struct {
	Sufficient bool `json:"sufficient"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

type paymentFailureResponse struct {
	Message       string `json:"message"`
	TransactionID string `json:"transactionUuid"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, item := range c.Items {
		items[i] = cartItemResponse{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
		}
	}
	return cartResponse{ID: c.ID.String(), Items: items}
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID:    item.ProductID.String(),
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder.String(),
		}
	}
	return orderResponse{
		ID:         o.ID.String(),
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice.String(),
		Items:      items,
		CreatedAt:  o.CreatedAt,
	}
}
