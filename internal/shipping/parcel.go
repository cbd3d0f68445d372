package shipping

import (
	"context"
	"math"
	"strings"

	"github.com/noah-isme/craftshop-api/internal/catalog"
)

// Address is a shipping destination or origin.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// normalized fills the country default and trims every field.
func (a Address) normalized() Address {
	out := Address{
		Name:    strings.TrimSpace(a.Name),
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Zip:     strings.TrimSpace(a.Zip),
		Country: strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if out.Country == "" {
		out.Country = "US"
	}
	if out.Name == "" {
		out.Name = "Customer"
	}
	return out
}

// Item is one physical piece to ship.
type Item struct {
	ProductID string
	Category  catalog.Category
	WeightLbs float64
	Length    float64
	Width     float64
	Height    float64
}

// ItemFromProduct extracts the shipping dimensions of a product.
func ItemFromProduct(p catalog.Product) Item {
	return Item{
		ProductID: p.ID,
		Category:  p.Category,
		WeightLbs: clamp(p.EstimatedWeightLbs),
		Length:    clamp(p.LengthInches),
		Width:     clamp(p.WidthInches),
		Height:    clamp(p.HeightInches),
	}
}

// Parcel is the combined package sent to the carrier.
type Parcel struct {
	LengthIn  float64 `json:"length"`
	WidthIn   float64 `json:"width"`
	HeightIn  float64 `json:"height"`
	WeightLbs float64 `json:"weight"`
}

// CombineParcel packs items into a single box: weights and heights add up,
// length and width take the largest item. This stacks items and is an
// approximation rather than bin packing.
func CombineParcel(items []Item) Parcel {
	var p Parcel
	for _, it := range items {
		p.WeightLbs += clamp(it.WeightLbs)
		p.HeightIn += clamp(it.Height)
		p.LengthIn = math.Max(p.LengthIn, clamp(it.Length))
		p.WidthIn = math.Max(p.WidthIn, clamp(it.Width))
	}
	return p
}

// ShipmentRequest is what a Provider needs to quote rates.
type ShipmentRequest struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Parcel Parcel  `json:"parcel"`
}

// Rate is a single carrier offer. Amount stays a decimal string as returned
// by the carrier; unparseable amounts are ignored during selection.
type Rate struct {
	ServiceName   string `json:"service_name"`
	Carrier       string `json:"carrier,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	EstimatedDays int    `json:"estimated_days"`
}

// Provider quotes carrier rates for a shipment.
type Provider interface {
	Rates(ctx context.Context, req ShipmentRequest) ([]Rate, error)
}

func clamp(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
