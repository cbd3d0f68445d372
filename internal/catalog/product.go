package catalog

import (
	"context"
	"strings"

	"github.com/noah-isme/craftshop-api/internal/money"
)

// Category tags a product for fallback shipping lookups.
type Category string

// Known product categories.
const (
	CategoryCuttingBoards Category = "cutting-boards"
	CategoryCheeseBoards  Category = "cheese-boards"
	CategoryCoasters      Category = "coasters"
	CategoryBarWare       Category = "bar-ware"
	CategoryFurniture     Category = "furniture"
)

// StockStatus mirrors the inventory label shown on the storefront.
type StockStatus string

// Stock statuses used by the back office.
const (
	StatusInStock      StockStatus = "In Stock"
	StatusOnSale       StockStatus = "On Sale"
	StatusSoldOut      StockStatus = "Sold Out"
	StatusSold         StockStatus = "Sold"
	StatusDiscontinued StockStatus = "Discontinued"
)

// Product is the read-only view of a catalog record consumed by pricing and shipping.
type Product struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Category           Category     `json:"category"`
	PriceCents         money.Cents  `json:"price_cents"`
	SalePriceCents     *money.Cents `json:"sale_price_cents,omitempty"`
	StockStatus        StockStatus  `json:"stock_status"`
	ShippingCents      *money.Cents `json:"shipping_cents,omitempty"`
	EstimatedWeightLbs float64      `json:"estimated_weight_lbs"`
	LengthInches       float64      `json:"length_inches"`
	WidthInches        float64      `json:"width_inches"`
	HeightInches       float64      `json:"height_inches"`
	ImagePath          string       `json:"image_path,omitempty"`
}

// EffectivePrice returns the sale price when it undercuts the regular price.
func (p Product) EffectivePrice() money.Cents {
	if p.SalePriceCents != nil && *p.SalePriceCents < p.PriceCents {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

// IsSold reports whether the product has been sold and must not be checked out.
// Only the exact "sold" status qualifies; "Sold Out" listings stay purchasable.
func (p Product) IsSold() bool {
	return strings.EqualFold(strings.TrimSpace(string(p.StockStatus)), string(StatusSold))
}

// Gateway supplies product records to the pricing pipeline.
type Gateway interface {
	ProductsByIDs(ctx context.Context, ids []string) ([]Product, error)
	ProductsByCategory(ctx context.Context, category Category) ([]Product, error)
}

// Index maps products by id for constant-time lookups.
func Index(products []Product) map[string]Product {
	out := make(map[string]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
