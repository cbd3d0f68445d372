package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/checkout"
	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/config"
	"github.com/noah-isme/craftshop-api/internal/health"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/obs"
	"github.com/noah-isme/craftshop-api/internal/pricing"
	"github.com/noah-isme/craftshop-api/internal/ratelimit"
	"github.com/noah-isme/craftshop-api/internal/security"
	"github.com/noah-isme/craftshop-api/internal/shipping"
	"github.com/noah-isme/craftshop-api/internal/tasks"
)

// Components are the collaborators the HTTP surface is built from. Tests
// substitute in-memory versions.
type Components struct {
	Catalog  catalog.Gateway
	Provider shipping.Provider
	Payments checkout.Gateway
	Redis    redis.UniversalClient
	Tasks    tasks.Enqueuer
	Limiter  *limiter.Limiter
	Checks   []health.Check
	Metrics  *obs.HTTPMetrics
	Tracing  bool
	Logger   zerolog.Logger
}

// NewRouter builds the chi router serving the storefront API.
func NewRouter(cfg *config.Config, c Components) (http.Handler, error) {
	if c.Catalog == nil {
		return nil, errors.New("app: catalog gateway is required")
	}
	builder, err := checkout.NewBuilder(checkout.BuilderConfig{
		PublicBaseURL:    cfg.PublicBaseURL,
		Currency:         cfg.Currency,
		AllowedCountries: cfg.AllowedCountries,
		DeliveryMinDays:  cfg.DeliveryMinDays,
		DeliveryMaxDays:  cfg.DeliveryMaxDays,
	})
	if err != nil {
		return nil, err
	}

	estimator := shipping.NewEstimator(c.Provider, EstimatorConfig(cfg), c.Logger)
	shipHandler := &shipping.Handler{Svc: &shipping.Service{Catalog: c.Catalog, Estimator: estimator}}
	catalogHandler := &catalog.Handler{Gateway: c.Catalog}

	var checkoutHandler http.HandlerFunc = unavailable("payments are not configured")
	if c.Payments != nil {
		h := &checkout.Handler{Svc: checkout.NewService(checkout.ServiceConfig{
			Catalog: c.Catalog,
			Builder: builder,
			Gateway: c.Payments,
			Discount: pricing.DiscountConfig{
				ShippingDiscountPercent: cfg.ShippingDiscountPercent,
				FreeShippingThreshold:   money.Cents(cfg.FreeShippingThreshold),
			},
			Logger: c.Logger,
		})}
		checkoutHandler = h.Checkout
	}
	webhook := checkout.StripeWebhook{
		Secret:    cfg.StripeWebhookSecret,
		Replay:    c.Redis,
		ReplayTTL: cfg.WebhookReplayTTL,
		Queue:     c.Tasks,
		Logger:    c.Logger.With().Str("component", "stripe_webhook").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if c.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if c.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: c.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: c.Logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	if c.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Checks: c.Checks}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	idem := common.Idem{R: c.Redis, TTL: cfg.IdempotencyTTL}
	throttle := ratelimit.Handler{
		Limiter: c.Limiter,
		Key:     ratelimit.ByClientIP,
		OnError: func(err error) { c.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.ListByCategory)
		v.Get("/products/{id}", catalogHandler.Get)

		v.Group(func(w chi.Router) {
			w.Use(bodyLimit.Middleware)
			w.Post("/calculate-shipping", shipHandler.Calculate)
			w.With(throttle.Middleware, idem.Middleware).Post("/checkout", checkoutHandler)
			w.Post("/webhooks/stripe", webhook.Handle)
		})
	})
	return r, nil
}

// EstimatorConfig maps configuration onto the estimator's settings.
func EstimatorConfig(cfg *config.Config) shipping.Config {
	sc := cfg.Shipping
	return shipping.Config{
		Origin: shipping.Address{
			Name:    sc.From.Name,
			Street:  sc.From.Street,
			City:    sc.From.City,
			State:   sc.From.State,
			Zip:     sc.From.Zip,
			Country: sc.From.Country,
		},
		PackagingSurcharge: money.Cents(sc.PackagingSurcharge),
		InsuranceThreshold: money.Cents(sc.InsuranceThreshold),
		InsuranceUnit:      money.Cents(sc.InsuranceUnit),
		ProviderTimeout:    sc.ProviderTimeout,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func unavailable(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", message, nil)
	}
}
