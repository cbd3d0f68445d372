package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/craftshop-api/internal/money"
)

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore reads products from the products table.
type PGStore struct {
	DB Querier
}

// NewPGStore constructs a Postgres backed catalog gateway.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{DB: db}
}

const productColumns = `id, name, category, price_cents, sale_price_cents, stock_status,
	shipping_cents, estimated_weight_lbs, length_inches, width_inches, height_inches, image_path`

type productRow struct {
	ID                 string   `db:"id"`
	Name               string   `db:"name"`
	Category           string   `db:"category"`
	PriceCents         int64    `db:"price_cents"`
	SalePriceCents     *int64   `db:"sale_price_cents"`
	StockStatus        string   `db:"stock_status"`
	ShippingCents      *int64   `db:"shipping_cents"`
	EstimatedWeightLbs *float64 `db:"estimated_weight_lbs"`
	LengthInches       *float64 `db:"length_inches"`
	WidthInches        *float64 `db:"width_inches"`
	HeightInches       *float64 `db:"height_inches"`
	ImagePath          *string  `db:"image_path"`
}

func (r productRow) toProduct() Product {
	p := Product{
		ID:                 r.ID,
		Name:               r.Name,
		Category:           Category(r.Category),
		PriceCents:         money.Cents(r.PriceCents),
		StockStatus:        StockStatus(r.StockStatus),
		EstimatedWeightLbs: floatOrZero(r.EstimatedWeightLbs),
		LengthInches:       floatOrZero(r.LengthInches),
		WidthInches:        floatOrZero(r.WidthInches),
		HeightInches:       floatOrZero(r.HeightInches),
	}
	if r.SalePriceCents != nil {
		sale := money.Cents(*r.SalePriceCents)
		p.SalePriceCents = &sale
	}
	if r.ShippingCents != nil {
		ship := money.Cents(*r.ShippingCents)
		p.ShippingCents = &ship
	}
	if r.ImagePath != nil {
		p.ImagePath = *r.ImagePath
	}
	return p
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return nonNegative(*v)
}

// ProductsByIDs returns the products matching ids. Unknown ids are simply absent.
func (s *PGStore) ProductsByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return []Product{}, nil
	}
	return s.query(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1)", ids)
}

// ProductsByCategory lists the products in a category ordered by name.
func (s *PGStore) ProductsByCategory(ctx context.Context, category Category) ([]Product, error) {
	return s.query(ctx, "SELECT "+productColumns+" FROM products WHERE category = $1 ORDER BY name", string(category))
}

func (s *PGStore) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[productRow])
	if err != nil {
		return nil, fmt.Errorf("catalog: scan products: %w", err)
	}
	out := make([]Product, 0, len(records))
	for _, r := range records {
		out = append(out, r.toProduct())
	}
	return out, nil
}
