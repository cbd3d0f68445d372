package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/config"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/obs"
)

func cents(v money.Cents) *money.Cents { return &v }

var products = []catalog.Product{
	{ID: "walnut-end-grain-xl", Name: "Walnut End Grain Board XL", Category: catalog.CategoryCuttingBoards, PriceCents: 18500, StockStatus: catalog.StatusInStock, EstimatedWeightLbs: 9, LengthInches: 20, WidthInches: 15, HeightInches: 2, ImagePath: "/images/walnut-end-grain-xl.jpg"},
	{ID: "maple-cherry-board", Name: "Maple & Cherry Board", Category: catalog.CategoryCuttingBoards, PriceCents: 12000, StockStatus: catalog.StatusInStock, EstimatedWeightLbs: 5, LengthInches: 16, WidthInches: 11, HeightInches: 1.5, ImagePath: "/images/maple-cherry-board.jpg"},
	{ID: "olive-cheese-paddle", Name: "Olive Wood Cheese Paddle", Category: catalog.CategoryCheeseBoards, PriceCents: 4500, StockStatus: catalog.StatusInStock, EstimatedWeightLbs: 2, LengthInches: 14, WidthInches: 7, HeightInches: 1, ImagePath: "/images/olive-cheese-paddle.jpg"},
	{ID: "charcuterie-plank", Name: "Charcuterie Plank", Category: catalog.CategoryCheeseBoards, PriceCents: 6500, SalePriceCents: cents(5200), StockStatus: catalog.StatusOnSale, EstimatedWeightLbs: 3, ImagePath: "/images/charcuterie-plank.jpg"},
	{ID: "walnut-coasters-4", Name: "Walnut Coasters (set of 4)", Category: catalog.CategoryCoasters, PriceCents: 1800, StockStatus: catalog.StatusInStock, EstimatedWeightLbs: 0.5},
	{ID: "bottle-opener", Name: "Wall Bottle Opener", Category: catalog.CategoryBarWare, PriceCents: 3200, StockStatus: catalog.StatusInStock, EstimatedWeightLbs: 1},
	{ID: "live-edge-bench", Name: "Live Edge Bench", Category: catalog.CategoryFurniture, PriceCents: 65000, StockStatus: catalog.StatusInStock, ShippingCents: cents(22000), EstimatedWeightLbs: 45, LengthInches: 48, WidthInches: 14, HeightInches: 18},
	{ID: "burl-serving-tray", Name: "Burl Serving Tray", Category: catalog.CategoryCheeseBoards, PriceCents: 9500, StockStatus: catalog.StatusSold, EstimatedWeightLbs: 3},
}

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("component", "seeder").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, category, price_cents, sale_price_cents, stock_status, shipping_cents,
				estimated_weight_lbs, length_inches, width_inches, height_inches, image_path)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8::float8, 0), NULLIF($9::float8, 0), NULLIF($10::float8, 0), NULLIF($11::float8, 0), NULLIF($12, ''))
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, category = EXCLUDED.category, price_cents = EXCLUDED.price_cents,
				sale_price_cents = EXCLUDED.sale_price_cents, stock_status = EXCLUDED.stock_status,
				shipping_cents = EXCLUDED.shipping_cents, estimated_weight_lbs = EXCLUDED.estimated_weight_lbs,
				length_inches = EXCLUDED.length_inches, width_inches = EXCLUDED.width_inches,
				height_inches = EXCLUDED.height_inches, image_path = EXCLUDED.image_path, updated_at = now()`,
			p.ID, p.Name, string(p.Category), int64(p.PriceCents), optionalCents(p.SalePriceCents), string(p.StockStatus),
			optionalCents(p.ShippingCents), p.EstimatedWeightLbs, p.LengthInches, p.WidthInches, p.HeightInches, p.ImagePath)
		if err != nil {
			logger.Error().Err(err).Str("product_id", p.ID).Msg("seed product")
			continue
		}
	}
	logger.Info().Int("products", len(products)).Msg("seeding completed")
}

func optionalCents(c *money.Cents) *int64 {
	if c == nil {
		return nil
	}
	v := int64(*c)
	return &v
}
