// Package cartstore implements the cart contract on Redis. Carts are
// ephemeral working state, not part of the saga core; they live in a hash per
// user plus a stable cart ID key recorded on orders created from the cart.
package cartstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var _ cart.Store = (*Redis)(nil)

// Redis stores carts in a hash keyed by user, mapping product ID to quantity.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a cart store over the given client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func itemsKey(userID uuid.UUID) string { return "cart:" + userID.String() }
func idKey(userID uuid.UUID) string    { return "cart:" + userID.String() + ":id" }

// Snapshot reads the user's cart in one pass. An absent cart snapshots as
// empty with a nil-less fresh ID; callers treat zero items as "no cart".
func (r *Redis) Snapshot(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	fields, err := r.client.HGetAll(ctx, itemsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cart for user %q: %w", userID, err)
	}

	c := &cart.Cart{
		UserID: userID,
		Items:  make([]cart.Item, 0, len(fields)),
	}
	for field, value := range fields {
		productID, err := uuid.Parse(field)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart entry %q for user %q: %w", field, userID, err)
		}
		quantity, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart quantity %q for user %q: %w", value, userID, err)
		}
		c.Items = append(c.Items, cart.Item{ProductID: productID, Quantity: quantity})
	}

	c.ID, err = r.cartID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Add increases the quantity of a product in the cart, creating the cart on
// first use.
func (r *Redis) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	// Assign the cart ID before the first item so concurrent adds agree on it.
	if err := r.client.SetNX(ctx, idKey(userID), uuid.New().String(), 0).Err(); err != nil {
		return fmt.Errorf("assigning cart id for user %q: %w", userID, err)
	}

	err := r.client.HIncrBy(ctx, itemsKey(userID), productID.String(), int64(quantity)).Err()
	if err != nil {
		return fmt.Errorf("adding product %q to cart for user %q: %w", productID, userID, err)
	}
	return nil
}

// Remove deletes a product line from the cart.
func (r *Redis) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	err := r.client.HDel(ctx, itemsKey(userID), productID.String()).Err()
	if err != nil {
		return fmt.Errorf("removing product %q from cart for user %q: %w", productID, userID, err)
	}
	return nil
}

// Clear removes the cart and its ID. The next Add starts a fresh cart with a
// new ID.
func (r *Redis) Clear(ctx context.Context, userID uuid.UUID) error {
	err := r.client.Del(ctx, itemsKey(userID), idKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

func (r *Redis) cartID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	raw, err := r.client.Get(ctx, idKey(userID)).Result()
	if err == redis.Nil {
		return uuid.New(), nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading cart id for user %q: %w", userID, err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt cart id for user %q: %w", userID, err)
	}
	return id, nil
}
