package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/repository"
)

type productJSON struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

type balanceJSON struct {
	UserID uuid.UUID       `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		balancesFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.StringVar(&balancesFile, "balances-file", "", "optional path to demo balances JSON file (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, balancesFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, balancesFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool, db.CheckoutSchema); err != nil {
		return errors.Wrap(err, "run checkout migrations")
	}
	if err := repository.RunMigrations(ctx, pool, db.LedgerSchema); err != nil {
		return errors.Wrap(err, "run ledger migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if balancesFile != "" {
		if err := seedBalances(ctx, pool, balancesFile); err != nil {
			return errors.Wrap(err, "seed balances")
		}
	}

	return nil
}

// readSeedFile reads a seed file, transparently decompressing .gz payloads.
func readSeedFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return data, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := readSeedFile(productsFile)
	if err != nil {
		return err
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	repo := repository.NewProductRepository(pool)
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, &product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Category: p.Category,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID.String()), slog.String("name", p.Name))
	}

	return nil
}

func seedBalances(ctx context.Context, pool *pgxpool.Pool, balancesFile string) error {
	slog.Info("reading balances file", slog.String("path", balancesFile))

	data, err := readSeedFile(balancesFile)
	if err != nil {
		return err
	}

	var balances []balanceJSON
	if err := json.Unmarshal(data, &balances); err != nil {
		return errors.Wrap(err, "parse balances JSON")
	}

	store := repository.NewLedgerStore(pool)
	slog.Info("seeding balances", slog.Int("count", len(balances)))

	for _, b := range balances {
		if _, err := store.EnsureBalance(ctx, b.UserID, b.Amount); err != nil {
			return errors.Wrapf(err, "seed balance for user %s", b.UserID)
		}

		slog.Info("seeded balance", slog.String("user", b.UserID.String()), slog.String("amount", b.Amount.String()))
	}

	return nil
}
