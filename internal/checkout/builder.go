package checkout

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/pricing"
)

// ErrEmptySession is returned when no line item survives filtering.
var ErrEmptySession = errors.New("checkout: session has no line items")

const (
	LocalPickupLabel  = "Local pickup"
	FreeShippingLabel = "Free shipping"
	ShippingLabel     = "Shipping"

	// SessionIDPlaceholder is substituted by the payment provider on redirect.
	SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"
)

// LineItem is one product row on the hosted payment page.
type LineItem struct {
	ProductID   string
	ProductName string
	UnitAmount  money.Cents
	Quantity    int
	ImageURL    string
}

// DeliveryEstimate is a business-day window shown next to a shipping option.
type DeliveryEstimate struct {
	MinBusinessDays int
	MaxBusinessDays int
}

// ShippingOption is a selectable shipping rate.
type ShippingOption struct {
	Label    string
	Amount   money.Cents
	Delivery *DeliveryEstimate
}

// SessionRequest describes a hosted checkout session for a Gateway.
type SessionRequest struct {
	LineItems           []LineItem
	ShippingOptions     []ShippingOption
	AllowedCountries    []string
	Currency            string
	SuccessURL          string
	CancelURL           string
	AutomaticTax        bool
	AllowPromotionCodes bool
	ClientReferenceID   string
	Metadata            map[string]string
}

// BuilderConfig carries deployment settings used to assemble sessions.
type BuilderConfig struct {
	PublicBaseURL    string
	Currency         string
	AllowedCountries []string
	DeliveryMinDays  int
	DeliveryMaxDays  int
}

// Builder turns priced carts into session requests. It never talks to the gateway.
type Builder struct {
	cfg   BuilderConfig
	base  *url.URL
	newID func() string
}

// NewBuilder validates the public base URL and fills defaults.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("checkout: invalid public base url %q", cfg.PublicBaseURL)
	}
	cfg.PublicBaseURL = raw
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	if len(cfg.AllowedCountries) == 0 {
		cfg.AllowedCountries = []string{"US"}
	}
	if cfg.DeliveryMinDays <= 0 {
		cfg.DeliveryMinDays = 3
	}
	if cfg.DeliveryMaxDays < cfg.DeliveryMinDays {
		cfg.DeliveryMaxDays = cfg.DeliveryMinDays + 4
	}
	return &Builder{cfg: cfg, base: base, newID: uuid.NewString}, nil
}

// Build assembles a session request from aggregated totals.
func (b *Builder) Build(totals pricing.OrderTotals) (SessionRequest, error) {
	items := make([]LineItem, 0, len(totals.Lines))
	for _, l := range totals.Lines {
		if l.Quantity < 1 || l.UnitPrice <= 0 {
			continue
		}
		items = append(items, LineItem{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			UnitAmount:  l.UnitPrice,
			Quantity:    l.Quantity,
			ImageURL:    b.imageURL(l.Product.ImagePath),
		})
	}
	if len(items) == 0 {
		return SessionRequest{}, ErrEmptySession
	}

	return SessionRequest{
		LineItems: items,
		ShippingOptions: []ShippingOption{
			{Label: LocalPickupLabel, Amount: 0},
			{
				Label:    standardLabel(totals),
				Amount:   totals.Shipping.NonNegative(),
				Delivery: &DeliveryEstimate{MinBusinessDays: b.cfg.DeliveryMinDays, MaxBusinessDays: b.cfg.DeliveryMaxDays},
			},
		},
		AllowedCountries:    append([]string(nil), b.cfg.AllowedCountries...),
		Currency:            b.cfg.Currency,
		SuccessURL:          b.cfg.PublicBaseURL + "/checkout/success?session_id=" + SessionIDPlaceholder,
		CancelURL:           b.cfg.PublicBaseURL + "/cart",
		AutomaticTax:        true,
		AllowPromotionCodes: true,
		ClientReferenceID:   b.newID(),
		Metadata: map[string]string{
			"subtotal_cents": fmt.Sprint(int64(totals.Subtotal)),
			"shipping_cents": fmt.Sprint(int64(totals.Shipping)),
		},
	}, nil
}

func standardLabel(totals pricing.OrderTotals) string {
	switch {
	case totals.Shipping <= 0:
		return FreeShippingLabel
	case totals.DiscountApplied && !totals.ShippingSupplied:
		return fmt.Sprintf("%s (%s%% off)", ShippingLabel, totals.DiscountPercent.String())
	default:
		return ShippingLabel
	}
}

// imageURL returns an absolute HTTPS image location or "" when none can be
// sent safely.
func (b *Builder) imageURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || b.base.Scheme != "https" {
		return ""
	}
	ref, err := url.Parse(path)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		if ref.Scheme != "https" {
			return ""
		}
		return ref.String()
	}
	if ref.Host != "" {
		// protocol-relative
		ref.Scheme = "https"
		return ref.String()
	}
	return b.base.ResolveReference(ref).String()
}
