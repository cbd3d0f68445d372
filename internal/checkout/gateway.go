package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// ErrGateway wraps failures reported by the payment provider.
var ErrGateway = errors.New("checkout: payment gateway failure")

// Session is the hosted checkout created by a Gateway.
type Session struct {
	ID  string
	URL string
}

// Gateway creates hosted payment sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// StripeGateway creates Stripe Checkout sessions in payment mode.
type StripeGateway struct {
	client session.Client
}

// NewStripeGateway builds a gateway using the default Stripe API backend.
func NewStripeGateway(secretKey string) *StripeGateway {
	return NewStripeGatewayWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

// NewStripeGatewayWithBackend allows overriding the Stripe backend.
func NewStripeGatewayWithBackend(secretKey string, backend stripe.Backend) *StripeGateway {
	return &StripeGateway{client: session.Client{B: backend, Key: strings.TrimSpace(secretKey)}}
}

// CreateSession implements Gateway.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := toStripeParams(req)
	params.Context = ctx
	s, err := g.client.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if s.URL == "" {
		return Session{}, fmt.Errorf("%w: session %s has no redirect url", ErrGateway, s.ID)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

func toStripeParams(req SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(req.AllowPromotionCodes),
		AutomaticTax:        &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(req.AutomaticTax)},
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		},
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(li.ProductName),
			Metadata: map[string]string{"product_id": li.ProductID},
		}
		if li.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{li.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(li.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(int64(li.UnitAmount)),
				ProductData: product,
			},
		})
	}

	for _, opt := range req.ShippingOptions {
		rate := &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
			Type:        stripe.String("fixed_amount"),
			DisplayName: stripe.String(opt.Label),
			FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
				Amount:   stripe.Int64(int64(opt.Amount)),
				Currency: stripe.String(req.Currency),
			},
		}
		if opt.Delivery != nil {
			rate.DeliveryEstimate = &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateParams{
				Minimum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMinimumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(int64(opt.Delivery.MinBusinessDays)),
				},
				Maximum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMaximumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(int64(opt.Delivery.MaxBusinessDays)),
				},
			}
		}
		params.ShippingOptions = append(params.ShippingOptions, &stripe.CheckoutSessionShippingOptionParams{ShippingRateData: rate})
	}
	return params
}
