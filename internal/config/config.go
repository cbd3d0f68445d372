package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string

	Currency                string
	AllowedCountries        []string
	FreeShippingThreshold   int64
	ShippingDiscountPercent decimal.Decimal
	DeliveryMinDays         int
	DeliveryMaxDays         int

	Shipping ShippingConfig

	StripeSecretKey     string
	StripeWebhookSecret string
	WebhookReplayTTL    time.Duration

	IdempotencyTTL     time.Duration
	CheckoutRateLimit  string
	BodyLimitBytes     int64
	WorkerConcurrency  int
	ShopName           string
	ShutdownTimeout    time.Duration
	ObsLogFormat       string
	ObsLogLevel        string
	ObsMetricsEnabled  bool
	ObsTracingEnabled  bool
	ObsServiceName     string
	ObsOTLPEndpoint    string
	ObsTraceSampleRate float64
}

// ShippingConfig carries estimator and carrier settings.
type ShippingConfig struct {
	Provider           string
	ShippoAPIKey       string
	ShippoBaseURL      string
	ProviderTimeout    time.Duration
	QuoteCacheTTL      time.Duration
	PackagingSurcharge int64
	InsuranceThreshold int64
	InsuranceUnit      int64
	BreakerMinRequests int
	BreakerFailRatio   float64
	BreakerOpenFor     time.Duration
	From               Address
}

// Address is the ship-from location.
type Address struct {
	Name    string
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	appEnv := valueOrDefault(k.String("APP_ENV"), "development")
	cfg := &Config{
		AppEnv:             appEnv,
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:3000"), "/"),

		Currency:                strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "usd")),
		AllowedCountries:        upper(splitAndTrim(valueOrDefault(k.String("ALLOWED_COUNTRIES"), "US"))),
		FreeShippingThreshold:   parseInt64(k.String("FREE_SHIPPING_THRESHOLD_CENTS"), 20000),
		ShippingDiscountPercent: parseDecimal(k.String("SHIPPING_DISCOUNT_PERCENT")),
		DeliveryMinDays:         parseInt(k.String("DELIVERY_ESTIMATE_MIN_DAYS"), 3),
		DeliveryMaxDays:         parseInt(k.String("DELIVERY_ESTIMATE_MAX_DAYS"), 7),

		Shipping: ShippingConfig{
			Provider:           strings.ToLower(valueOrDefault(k.String("SHIPPING_PROVIDER"), "shippo")),
			ShippoAPIKey:       strings.TrimSpace(k.String("SHIPPO_API_KEY")),
			ShippoBaseURL:      k.String("SHIPPO_BASE_URL"),
			ProviderTimeout:    parseDuration(k.String("SHIPPING_PROVIDER_TIMEOUT"), "8s"),
			QuoteCacheTTL:      parseDuration(k.String("SHIPPING_QUOTE_CACHE_TTL"), "10m"),
			PackagingSurcharge: parseInt64(k.String("PACKAGING_SURCHARGE_CENTS"), 500),
			InsuranceThreshold: parseInt64(k.String("INSURANCE_THRESHOLD_CENTS"), 10000),
			InsuranceUnit:      parseInt64(k.String("INSURANCE_UNIT_CENTS"), 100),
			BreakerMinRequests: parseInt(k.String("SHIPPING_BREAKER_MIN_REQUESTS"), 5),
			BreakerFailRatio:   parseFloat(k.String("SHIPPING_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:     parseDuration(k.String("SHIPPING_BREAKER_OPEN_FOR"), "30s"),
			From: Address{
				Name:    valueOrDefault(k.String("SHIP_FROM_NAME"), "Craftshop Workshop"),
				Street:  k.String("SHIP_FROM_STREET"),
				City:    k.String("SHIP_FROM_CITY"),
				State:   k.String("SHIP_FROM_STATE"),
				Zip:     k.String("SHIP_FROM_ZIP"),
				Country: strings.ToUpper(valueOrDefault(k.String("SHIP_FROM_COUNTRY"), "US")),
			},
		},

		StripeSecretKey:     strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),

		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		CheckoutRateLimit:  valueOrDefault(k.String("RATE_LIMIT_CHECKOUT"), "20-M"),
		BodyLimitBytes:     parseInt64(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 5),
		ShopName:           valueOrDefault(k.String("SHOP_NAME"), "Craftshop"),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		ObsLogFormat:       valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		ObsLogLevel:        valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		ObsMetricsEnabled:  parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		ObsTracingEnabled:  parseBool(k.String("OBS_TRACING_ENABLED")),
		ObsServiceName:     valueOrDefault(k.String("OBS_SERVICE_NAME"), "craftshop-api"),
		ObsOTLPEndpoint:    k.String("OBS_OTLP_ENDPOINT"),
		ObsTraceSampleRate: parseFloat(k.String("OBS_TRACE_SAMPLE_RATE"), 0.1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.IsProduction() && cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required in production")
	}
	if cfg.DeliveryMaxDays < cfg.DeliveryMinDays {
		return nil, fmt.Errorf("DELIVERY_ESTIMATE_MAX_DAYS (%d) must be >= DELIVERY_ESTIMATE_MIN_DAYS (%d)", cfg.DeliveryMaxDays, cfg.DeliveryMinDays)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func upper(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// parseDecimal returns zero for blank or malformed percentages.
func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MustLoad behaves like Load but panics on error. The binaries call it at startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
