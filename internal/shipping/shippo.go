package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/craftshop-api/internal/resilience"
)

// DefaultShippoBaseURL is the public Shippo API endpoint.
const DefaultShippoBaseURL = "https://api.goshippo.com"

// ShippoConfig configures the Shippo rate provider.
type ShippoConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Breaker *resilience.Breaker
	// Transport overrides the base round tripper, mostly for tests.
	Transport http.RoundTripper
}

// ShippoClient quotes rates through the Shippo shipments API.
type ShippoClient struct {
	apiKey  string
	baseURL string
	http    resilience.HTTPClient
}

// NewShippoClient builds a Shippo provider with an instrumented transport.
func NewShippoClient(cfg ShippoConfig) *ShippoClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultShippoBaseURL
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &ShippoClient{
		apiKey:  cfg.APIKey,
		baseURL: base,
		http: resilience.HTTPClient{
			Client:  &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker: cfg.Breaker,
			Timeout: cfg.Timeout,
			Target:  "shippo",
		},
	}
}

type shippoAddress struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type shippoParcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shippoShipment struct {
	AddressFrom shippoAddress  `json:"address_from"`
	AddressTo   shippoAddress  `json:"address_to"`
	Parcels     []shippoParcel `json:"parcels"`
	Async       bool           `json:"async"`
}

type shippoRate struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Provider      string `json:"provider"`
	EstimatedDays *int   `json:"estimated_days"`
	ServiceLevel  struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
}

type shippoShipmentResponse struct {
	Rates []shippoRate `json:"rates"`
}

func toShippoAddress(a Address) shippoAddress {
	return shippoAddress{Name: a.Name, Street1: a.Street, City: a.City, State: a.State, Zip: a.Zip, Country: a.Country}
}

func formatDim(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Rates creates a synchronous shipment and returns the offered rates.
func (c *ShippoClient) Rates(ctx context.Context, req ShipmentRequest) ([]Rate, error) {
	body, err := json.Marshal(shippoShipment{
		AddressFrom: toShippoAddress(req.From),
		AddressTo:   toShippoAddress(req.To),
		Parcels: []shippoParcel{{
			Length:       formatDim(req.Parcel.LengthIn),
			Width:        formatDim(req.Parcel.WidthIn),
			Height:       formatDim(req.Parcel.HeightIn),
			DistanceUnit: "in",
			Weight:       formatDim(req.Parcel.WeightLbs),
			MassUnit:     "lb",
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("shippo: encode shipment: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("shippo: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, cancel, err := c.http.Do(ctx, httpReq)
	defer cancel()
	if err != nil {
		return nil, fmt.Errorf("shippo: create shipment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("shippo: create shipment: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var payload shippoShipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("shippo: decode shipment: %w", err)
	}
	out := make([]Rate, 0, len(payload.Rates))
	for _, r := range payload.Rates {
		rate := Rate{
			ServiceName: strings.TrimSpace(strings.TrimSpace(r.Provider) + " " + r.ServiceLevel.Name),
			Carrier:     r.Provider,
			Amount:      r.Amount,
			Currency:    r.Currency,
		}
		if r.EstimatedDays != nil {
			rate.EstimatedDays = *r.EstimatedDays
		}
		out = append(out, rate)
	}
	return out, nil
}
