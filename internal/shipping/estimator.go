package shipping

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/obs"
	"github.com/noah-isme/craftshop-api/internal/resilience"
)

var (
	// ErrNoItems is returned when an estimate is requested for nothing.
	ErrNoItems = errors.New("shipping: no items to ship")
	// ErrMissingPostalCode is returned when the destination has no zip code.
	ErrMissingPostalCode = errors.New("shipping: destination postal code is required")
)

// Breakdown itemises an estimate. Insurance is zero when not applied.
type Breakdown struct {
	Shipping  money.Cents
	Packaging money.Cents
	Insurance money.Cents
	Total     money.Cents
}

// Estimate is the shipping cost quoted to a customer.
type Estimate struct {
	Cost          money.Cents
	ServiceName   string
	EstimatedDays int
	Breakdown     Breakdown
	UsedFallback  bool
}

// Config holds estimator policy knobs.
type Config struct {
	Origin             Address
	PackagingSurcharge money.Cents
	// InsuranceThreshold of zero disables insurance.
	InsuranceThreshold money.Cents
	InsuranceUnit      money.Cents
	ProviderTimeout    time.Duration
}

// DefaultConfig returns the storefront's standard policy.
func DefaultConfig() Config {
	return Config{
		PackagingSurcharge: money.FromUnits(5),
		InsuranceThreshold: money.FromUnits(100),
		InsuranceUnit:      money.FromUnits(1),
		ProviderTimeout:    8 * time.Second,
	}
}

// Estimator computes shipping estimates, falling back to category rates
// whenever the carrier cannot produce a usable quote.
type Estimator struct {
	provider Provider
	cfg      Config
	logger   zerolog.Logger
}

// NewEstimator builds an estimator. A nil provider always uses the fallback.
func NewEstimator(provider Provider, cfg Config, logger zerolog.Logger) *Estimator {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 8 * time.Second
	}
	return &Estimator{provider: provider, cfg: cfg, logger: logger}
}

// Estimate quotes shipping for items sent to dest. orderValue drives insurance.
// Carrier failures never surface as errors; they switch the estimate to the
// fallback table and set UsedFallback.
func (e *Estimator) Estimate(ctx context.Context, items []Item, dest Address, orderValue money.Cents) (Estimate, error) {
	if len(items) == 0 {
		return Estimate{}, ErrNoItems
	}
	if strings.TrimSpace(dest.Zip) == "" {
		return Estimate{}, ErrMissingPostalCode
	}
	ctx, span := otel.Tracer("shipping").Start(ctx, "shipping.Estimate")
	defer span.End()

	parcel := CombineParcel(items)
	var est Estimate
	res := e.lookupCarrier(ctx, ShipmentRequest{From: e.cfg.Origin, To: dest.normalized(), Parcel: parcel})
	if res.ok {
		est.Breakdown.Shipping = res.cost
		est.ServiceName = res.rate.ServiceName
		est.EstimatedDays = res.rate.EstimatedDays
		if est.EstimatedDays <= 0 {
			est.EstimatedDays = FallbackEstimatedDays
		}
		obs.IncCounter(obs.ShippingEstimatesTotal, "carrier")
	} else {
		est.Breakdown.Shipping = fallbackShipping(items)
		est.ServiceName = FallbackServiceName
		est.EstimatedDays = FallbackEstimatedDays
		est.UsedFallback = true
		obs.IncCounter(obs.ShippingEstimatesTotal, "fallback")
		e.log(ctx).Warn().
			Str("event", "shipping_fallback").
			Str("reason", res.reason).
			Err(res.err).
			Int("items", len(items)).
			Msg("carrier quote unavailable, using category rates")
	}

	est.Breakdown.Packaging = e.cfg.PackagingSurcharge.NonNegative()
	est.Breakdown.Insurance = e.insurance(orderValue)
	est.Breakdown.Total = money.Sum(est.Breakdown.Shipping, est.Breakdown.Packaging, est.Breakdown.Insurance).
		NonNegative().
		RoundToUnit()
	est.Cost = est.Breakdown.Total

	span.SetAttributes(
		attribute.Bool("shipping.fallback", est.UsedFallback),
		attribute.Int64("shipping.cost_cents", int64(est.Cost)),
	)
	return est, nil
}

// insurance charges one unit per started threshold once the order value
// reaches the threshold: $100.00 is one unit, $100.01 is two.
func (e *Estimator) insurance(orderValue money.Cents) money.Cents {
	t := e.cfg.InsuranceThreshold
	if t <= 0 || orderValue < t {
		return 0
	}
	units := (orderValue + t - 1) / t
	return units * e.cfg.InsuranceUnit.NonNegative()
}

// carrierResult is the outcome of a carrier lookup: either a selected rate or
// the reason no rate is usable.
type carrierResult struct {
	ok     bool
	rate   Rate
	cost   money.Cents
	reason string
	err    error
}

func (e *Estimator) lookupCarrier(ctx context.Context, req ShipmentRequest) carrierResult {
	if e.provider == nil {
		return carrierResult{reason: "no_provider"}
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	rates, err := e.provider.Rates(callCtx, req)
	elapsed := obs.DurationMillis(time.Since(start))
	if err != nil {
		reason := "provider_error"
		switch {
		case errors.Is(err, resilience.ErrOpenCircuit):
			reason = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			reason = "timeout"
		}
		obs.ObserveHistogram(obs.ShippingProviderLatency, elapsed, reason)
		return carrierResult{reason: reason, err: err}
	}
	rate, cost, found := selectRate(rates)
	if !found {
		obs.ObserveHistogram(obs.ShippingProviderLatency, elapsed, "no_rates")
		return carrierResult{reason: "no_usable_rates"}
	}
	obs.ObserveHistogram(obs.ShippingProviderLatency, elapsed, "ok")
	return carrierResult{ok: true, rate: rate, cost: cost}
}

type pricedRate struct {
	rate Rate
	cost money.Cents
}

// selectRate prefers Ground Advantage, then non-express Priority Mail, then
// the cheapest rate.
func selectRate(rates []Rate) (Rate, money.Cents, bool) {
	priced := make([]pricedRate, 0, len(rates))
	for _, r := range rates {
		cost, err := money.Parse(r.Amount)
		if err != nil || cost < 0 {
			continue
		}
		priced = append(priced, pricedRate{rate: r, cost: cost})
	}
	if len(priced) == 0 {
		return Rate{}, 0, false
	}
	for _, p := range priced {
		if strings.Contains(strings.ToLower(p.rate.ServiceName), "ground advantage") {
			return p.rate, p.cost, true
		}
	}
	for _, p := range priced {
		name := strings.ToLower(p.rate.ServiceName)
		if strings.Contains(name, "priority mail") && !strings.Contains(name, "express") {
			return p.rate, p.cost, true
		}
	}
	best := priced[0]
	for _, p := range priced[1:] {
		if p.cost < best.cost {
			best = p
		}
	}
	return best.rate, best.cost, true
}

func (e *Estimator) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &e.logger
}
