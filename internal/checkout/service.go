package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/obs"
	"github.com/noah-isme/craftshop-api/internal/pricing"
	"github.com/noah-isme/craftshop-api/internal/shipping"
)

// ErrEmptyCart is returned when the request references no products.
var ErrEmptyCart = errors.New("checkout: cart is empty")

// Request is a checkout attempt for a client-side cart.
type Request struct {
	Items []pricing.CartLine
	// CalculatedShipping is the estimate the client already showed the customer.
	CalculatedShipping *money.Cents
	Destination        *shipping.Address
}

// Result is a created hosted session plus the cart lines that were dropped.
type Result struct {
	SessionID string
	URL       string
	Dropped   []pricing.DroppedLine
	Totals    pricing.OrderTotals
}

// ServiceConfig wires the checkout pipeline.
type ServiceConfig struct {
	Catalog  catalog.Gateway
	Builder  *Builder
	Gateway  Gateway
	Discount pricing.DiscountConfig
	Logger   zerolog.Logger
}

// Service prices a cart and opens a hosted payment session for it.
type Service struct {
	catalog  catalog.Gateway
	builder  *Builder
	gateway  Gateway
	discount pricing.DiscountConfig
	logger   zerolog.Logger
}

// NewService constructs a checkout service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		catalog:  cfg.Catalog,
		builder:  cfg.Builder,
		gateway:  cfg.Gateway,
		discount: cfg.Discount,
		logger:   cfg.Logger,
	}
}

// Checkout runs normalise, fetch, aggregate, build and create in that order.
// ErrNoPurchasableItems comes back with the dropped lines in Result.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.Checkout")
	defer span.End()

	lines := pricing.NormalizeCart(req.Items)
	if len(lines) == 0 {
		obs.IncCounter(obs.CheckoutSessionsTotal, "invalid")
		return Result{}, ErrEmptyCart
	}
	products, err := s.catalog.ProductsByIDs(ctx, pricing.ProductIDs(lines))
	if err != nil {
		obs.IncCounter(obs.CheckoutSessionsTotal, "catalog_error")
		span.SetStatus(codes.Error, "catalog lookup failed")
		return Result{}, fmt.Errorf("checkout: load products: %w", err)
	}

	totals, err := pricing.Aggregate(pricing.Input{
		Lines:            lines,
		Products:         products,
		Destination:      req.Destination,
		SuppliedShipping: req.CalculatedShipping,
		Discount:         s.discount,
	})
	result := Result{Dropped: totals.Dropped, Totals: totals}
	if err != nil {
		obs.IncCounter(obs.CheckoutSessionsTotal, "unavailable")
		return result, err
	}

	sessionReq, err := s.builder.Build(totals)
	if err != nil {
		obs.IncCounter(obs.CheckoutSessionsTotal, "unavailable")
		return result, err
	}

	sess, err := s.gateway.CreateSession(ctx, sessionReq)
	if err != nil {
		obs.IncCounter(obs.CheckoutSessionsTotal, "gateway_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway failure")
		if !errors.Is(err, ErrGateway) {
			err = fmt.Errorf("%w: %w", ErrGateway, err)
		}
		return result, err
	}
	result.SessionID = sess.ID
	result.URL = sess.URL

	obs.IncCounter(obs.CheckoutSessionsTotal, "created")
	span.SetAttributes(
		attribute.String("checkout.session_id", sess.ID),
		attribute.Int64("checkout.total_cents", int64(totals.Total)),
		attribute.Int("checkout.dropped", len(totals.Dropped)),
	)
	s.log(ctx).Info().
		Str("event", "checkout_session_created").
		Str("session_id", sess.ID).
		Str("client_reference_id", sessionReq.ClientReferenceID).
		Int64("subtotal_cents", int64(totals.Subtotal)).
		Int64("shipping_cents", int64(totals.Shipping)).
		Int("lines", len(totals.Lines)).
		Strs("dropped", totals.DroppedIDs()).
		Msg("checkout session created")
	return result, nil
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}
