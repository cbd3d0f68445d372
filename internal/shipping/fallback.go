package shipping

import (
	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/money"
)

const (
	// FallbackServiceName labels estimates computed without a carrier.
	FallbackServiceName = "Estimated Shipping"
	// FallbackEstimatedDays is the delivery estimate attached to fallback quotes.
	FallbackEstimatedDays = 5
)

var categoryRates = map[catalog.Category]money.Cents{
	catalog.CategoryCuttingBoards: money.FromUnits(50),
	catalog.CategoryCheeseBoards:  money.FromUnits(25),
	catalog.CategoryCoasters:      money.FromUnits(12),
	catalog.CategoryBarWare:       money.FromUnits(15),
	catalog.CategoryFurniture:     money.FromUnits(150),
}

// DefaultCategoryRate applies to categories without a dedicated rate.
var DefaultCategoryRate = money.FromUnits(20)

// CategoryRate returns the flat per-item shipping rate for a category.
func CategoryRate(c catalog.Category) money.Cents {
	if rate, ok := categoryRates[c]; ok {
		return rate
	}
	return DefaultCategoryRate
}

// fallbackShipping sums the category rate of every item.
func fallbackShipping(items []Item) money.Cents {
	var total money.Cents
	for _, it := range items {
		total += CategoryRate(it.Category)
	}
	return total
}
