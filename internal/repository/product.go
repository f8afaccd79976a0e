package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category FROM products ORDER BY name`

	getProductPriceSQL = `SELECT price FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, category)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, price = $3, category = $4`
)

var _ product.Catalog = (*ProductRepository)(nil)

// ProductRepository implements product.Catalog backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all catalog products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Product, error) {
		var p product.Product
		err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category)
		return p, err
	})
}

// Price returns the current catalog price for a product.
func (r *ProductRepository) Price(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.pool.QueryRow(ctx, getProductPriceSQL, id).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, product.ErrNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("getting price for product %q: %w", id, err)
	}
	return price, nil
}

// Upsert inserts or updates a catalog product. Used by seeding.
func (r *ProductRepository) Upsert(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}
