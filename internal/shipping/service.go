package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/money"
)

// ErrNothingToShip is returned when every requested product is missing or sold.
var ErrNothingToShip = errors.New("shipping: none of the requested products can be shipped")

// Service prices shipping for a list of catalog products.
type Service struct {
	Catalog   catalog.Gateway
	Estimator *Estimator
}

// Calculate estimates shipping for productIDs sent to dest. Each id is one
// physical item; repeated ids ship repeatedly. Missing and sold products are
// skipped and the order value used for insurance is the sum of the effective
// prices of the remaining items.
func (s *Service) Calculate(ctx context.Context, productIDs []string, dest Address) (Estimate, error) {
	if len(productIDs) == 0 {
		return Estimate{}, ErrNoItems
	}
	products, err := s.Catalog.ProductsByIDs(ctx, productIDs)
	if err != nil {
		return Estimate{}, fmt.Errorf("shipping: load products: %w", err)
	}
	byID := catalog.Index(products)

	items := make([]Item, 0, len(productIDs))
	var orderValue money.Cents
	for _, id := range productIDs {
		p, ok := byID[id]
		if !ok || p.IsSold() {
			continue
		}
		items = append(items, ItemFromProduct(p))
		orderValue += p.EffectivePrice()
	}
	if len(items) == 0 {
		return Estimate{}, ErrNothingToShip
	}
	return s.Estimator.Estimate(ctx, items, dest, orderValue)
}
