package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/shipping"
)

// ErrNoPurchasableItems is returned when every cart line was dropped.
var ErrNoPurchasableItems = errors.New("pricing: no purchasable items in cart")

// DropReason explains why a cart line was removed.
type DropReason string

const (
	DropMissing  DropReason = "missing"
	DropSold     DropReason = "sold"
	DropUnpriced DropReason = "unpriced"
)

// DroppedLine records a cart line that cannot be purchased.
type DroppedLine struct {
	ProductID string     `json:"id"`
	Reason    DropReason `json:"reason"`
}

// Line is a purchasable cart line with its resolved product.
type Line struct {
	Product   catalog.Product
	Quantity  int
	UnitPrice money.Cents
}

// Amount is the line's extended price.
func (l Line) Amount() money.Cents {
	return l.UnitPrice * money.Cents(l.Quantity)
}

// DiscountConfig holds order-level shipping promotions.
type DiscountConfig struct {
	// ShippingDiscountPercent is clamped to [0, 100].
	ShippingDiscountPercent decimal.Decimal
	// FreeShippingThreshold of zero disables free shipping.
	FreeShippingThreshold money.Cents
}

// Input is everything the aggregator needs for one cart.
type Input struct {
	Lines    []CartLine
	Products []catalog.Product
	// Destination is carried through to the result; it does not change totals.
	Destination *shipping.Address
	// SuppliedShipping is a caller-computed shipping cost. It is trusted,
	// clamped at zero and never discounted.
	SuppliedShipping *money.Cents
	Discount         DiscountConfig
}

// OrderTotals is the priced cart.
type OrderTotals struct {
	Lines            []Line
	Dropped          []DroppedLine
	Subtotal         money.Cents
	Shipping         money.Cents
	Total            money.Cents
	DiscountPercent  decimal.Decimal
	DiscountApplied  bool
	ShippingSupplied bool
	FreeShipping     bool
	Destination      *shipping.Address
}

// DroppedIDs lists the ids of dropped lines.
func (t OrderTotals) DroppedIDs() []string {
	ids := make([]string, 0, len(t.Dropped))
	for _, d := range t.Dropped {
		ids = append(ids, d.ProductID)
	}
	return ids
}

var hundred = decimal.NewFromInt(100)

// Aggregate prices a cart. Lines whose product is missing, sold or unpriced
// are dropped and reported in Dropped. When nothing survives the returned
// totals still carry Dropped alongside ErrNoPurchasableItems.
func Aggregate(in Input) (OrderTotals, error) {
	products := catalog.Index(in.Products)
	totals := OrderTotals{Destination: in.Destination}

	for _, cl := range NormalizeCart(in.Lines) {
		p, ok := products[cl.ProductID]
		switch {
		case !ok:
			totals.Dropped = append(totals.Dropped, DroppedLine{ProductID: cl.ProductID, Reason: DropMissing})
			continue
		case p.IsSold():
			totals.Dropped = append(totals.Dropped, DroppedLine{ProductID: cl.ProductID, Reason: DropSold})
			continue
		case p.EffectivePrice() <= 0:
			totals.Dropped = append(totals.Dropped, DroppedLine{ProductID: cl.ProductID, Reason: DropUnpriced})
			continue
		}
		line := Line{Product: p, Quantity: cl.Quantity, UnitPrice: p.EffectivePrice()}
		totals.Lines = append(totals.Lines, line)
		totals.Subtotal += line.Amount()
	}
	if len(totals.Lines) == 0 {
		return totals, ErrNoPurchasableItems
	}

	pct := clampPercent(in.Discount.ShippingDiscountPercent)
	if in.SuppliedShipping != nil {
		totals.Shipping = in.SuppliedShipping.NonNegative()
		totals.ShippingSupplied = true
	} else {
		base := lineShipping(totals.Lines)
		totals.Shipping = applyDiscount(base, pct)
		totals.DiscountApplied = pct.IsPositive() && base > 0
		totals.DiscountPercent = pct
	}

	if t := in.Discount.FreeShippingThreshold; t > 0 && totals.Subtotal >= t {
		totals.Shipping = 0
		totals.FreeShipping = true
		totals.DiscountApplied = false
	}
	totals.Total = totals.Subtotal + totals.Shipping
	return totals, nil
}

// lineShipping charges one shipping amount per cart line regardless of
// quantity: the product override when set, else the category rate.
// NOTE: quantity is deliberately ignored pending business sign-off.
func lineShipping(lines []Line) money.Cents {
	var total money.Cents
	for _, l := range lines {
		if l.Product.ShippingCents != nil {
			total += l.Product.ShippingCents.NonNegative()
			continue
		}
		total += shipping.CategoryRate(l.Product.Category)
	}
	return total
}

func applyDiscount(amount money.Cents, pct decimal.Decimal) money.Cents {
	if !pct.IsPositive() {
		return amount
	}
	factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
	return money.FromDecimal(amount.Decimal().Mul(factor)).NonNegative()
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
