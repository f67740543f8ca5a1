// Command seed-db prepares a database for local development: it runs the
// schema migrations and upserts sample products, a few coupons, and an API key
// for exercising the protected endpoints.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marketlane/checkout/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	Variant  string          `json:"variant"`
	Image    string          `json:"image"`
	Stock    int             `json:"stock"`
}

const (
	upsertProductSQL = `
INSERT INTO products (id, name, price, category, variant, image, stock)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name     = EXCLUDED.name,
    price    = EXCLUDED.price,
    category = EXCLUDED.category,
    variant  = EXCLUDED.variant,
    image    = EXCLUDED.image,
    stock    = EXCLUDED.stock
`
	upsertCouponSQL = `
INSERT INTO coupons (code, type, value, description, min_purchase, max_discount, usage_limit, user_limit, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
ON CONFLICT (code) DO UPDATE SET
    type         = EXCLUDED.type,
    value        = EXCLUDED.value,
    description  = EXCLUDED.description,
    min_purchase = EXCLUDED.min_purchase,
    max_discount = EXCLUDED.max_discount,
    usage_limit  = EXCLUDED.usage_limit,
    user_limit   = EXCLUDED.user_limit,
    active       = TRUE
`
	upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, user_id, scopes, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash,
    name     = EXCLUDED.name,
    user_id  = EXCLUDED.user_id,
    scopes   = EXCLUDED.scopes,
    active   = TRUE
`
)

type seedCoupon struct {
	code        string
	couponType  string
	value       decimal.Decimal
	description string
	minPurchase decimal.Decimal
	maxDiscount decimal.Decimal
	usageLimit  int
	userLimit   int
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category, p.Variant, p.Image, p.Stock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding sample coupons")

	coupons := []seedCoupon{
		{
			code:        "WELCOME10",
			couponType:  "percentage",
			value:       decimal.NewFromInt(10),
			description: "Welcome: 10% off your first order",
			userLimit:   1,
		},
		{
			code:        "SAVE15",
			couponType:  "fixed",
			value:       decimal.NewFromInt(15),
			description: "$15 off orders over $50",
			minPurchase: decimal.NewFromInt(50),
		},
		{
			code:        "HALFOFF",
			couponType:  "percentage",
			value:       decimal.NewFromInt(50),
			description: "50% off, up to $25",
			maxDiscount: decimal.NewFromInt(25),
			usageLimit:  1000,
		},
		{
			code:        "SHIPFREE",
			couponType:  "free_shipping",
			value:       decimal.Zero,
			description: "Free shipping on orders over $25",
			minPurchase: decimal.NewFromInt(25),
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.couponType, c.value, c.description,
			c.minPurchase, c.maxDiscount, c.usageLimit, c.userLimit,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	scopes := []string{"orders:write", "orders:admin"}
	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default development key", "user-default", scopes,
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default development key"))

	return nil
}
