package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/craftshop-api/internal/catalog"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/pricing"
)

type fakeGateway struct {
	calls int
	last  SessionRequest
	err   error
}

func (g *fakeGateway) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	g.calls++
	g.last = req
	if g.err != nil {
		return Session{}, g.err
	}
	return Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func newTestService(t *testing.T, gw Gateway, products ...catalog.Product) *Service {
	t.Helper()
	return NewService(ServiceConfig{
		Catalog: catalog.NewMemoryStore(products...),
		Builder: testBuilder(t, "https://shop.example.com"),
		Gateway: gw,
		Discount: pricing.DiscountConfig{
			ShippingDiscountPercent: decimal.NewFromInt(20),
			FreeShippingThreshold:   money.FromUnits(200),
		},
		Logger: zerolog.Nop(),
	})
}

func storeProducts() []catalog.Product {
	return []catalog.Product{
		{ID: "cheese", Name: "Cheese board", Category: catalog.CategoryCheeseBoards, PriceCents: 4500, StockStatus: catalog.StatusInStock},
		{ID: "coaster", Name: "Coaster set", Category: catalog.CategoryCoasters, PriceCents: 1800, StockStatus: catalog.StatusInStock},
		{ID: "gone", Name: "Sold board", Category: catalog.CategoryCuttingBoards, PriceCents: 9000, StockStatus: catalog.StatusSold},
	}
}

func TestCheckoutCreatesSession(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, storeProducts()...)

	res, err := svc.Checkout(context.Background(), Request{Items: []pricing.CartLine{
		{ProductID: "cheese", Quantity: 1},
		{ProductID: "coaster", Quantity: 1},
	}})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", res.SessionID)
	require.Equal(t, money.Cents(9260), res.Totals.Total)
	require.Empty(t, res.Dropped)

	require.Equal(t, 1, gw.calls)
	require.Len(t, gw.last.LineItems, 2)
	require.Equal(t, "Shipping (20% off)", gw.last.ShippingOptions[1].Label)
	require.Equal(t, money.Cents(2960), gw.last.ShippingOptions[1].Amount)
}

func TestCheckoutExcludesSoldItems(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, storeProducts()...)

	res, err := svc.Checkout(context.Background(), Request{Items: []pricing.CartLine{
		{ProductID: "gone", Quantity: 1},
		{ProductID: "coaster", Quantity: 2},
	}})
	require.NoError(t, err)
	require.Equal(t, []pricing.DroppedLine{{ProductID: "gone", Reason: pricing.DropSold}}, res.Dropped)
	require.Len(t, gw.last.LineItems, 1)
	require.Equal(t, "coaster", gw.last.LineItems[0].ProductID)
	require.Equal(t, 2, gw.last.LineItems[0].Quantity)
}

func TestCheckoutAllSold(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, storeProducts()...)

	res, err := svc.Checkout(context.Background(), Request{Items: []pricing.CartLine{{ProductID: "gone", Quantity: 1}}})
	require.ErrorIs(t, err, pricing.ErrNoPurchasableItems)
	require.Len(t, res.Dropped, 1)
	require.Zero(t, gw.calls)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc := newTestService(t, &fakeGateway{}, storeProducts()...)
	_, err := svc.Checkout(context.Background(), Request{Items: []pricing.CartLine{{ProductID: " ", Quantity: 1}}})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutGatewayFailure(t *testing.T) {
	svc := newTestService(t, &fakeGateway{err: errors.New("connection reset")}, storeProducts()...)
	_, err := svc.Checkout(context.Background(), Request{Items: []pricing.CartLine{{ProductID: "cheese", Quantity: 1}}})
	require.ErrorIs(t, err, ErrGateway)
}

func TestCheckoutUsesSuppliedShipping(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(t, gw, storeProducts()...)
	supplied := money.Cents(5700)
	res, err := svc.Checkout(context.Background(), Request{
		Items:              []pricing.CartLine{{ProductID: "cheese", Quantity: 1}},
		CalculatedShipping: &supplied,
	})
	require.NoError(t, err)
	require.Equal(t, supplied, res.Totals.Shipping)
	require.Equal(t, ShippingLabel, gw.last.ShippingOptions[1].Label)
}

func postCheckout(t *testing.T, h *Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	return rec
}

func TestCheckoutHandler(t *testing.T) {
	h := &Handler{Svc: newTestService(t, &fakeGateway{}, storeProducts()...)}

	rec := postCheckout(t, h, map[string]any{
		"items":              []map[string]any{{"id": "cheese", "qty": 1}, {"id": "gone", "qty": 1}},
		"calculatedShipping": "12.50",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		URL       string                `json:"url"`
		SessionID string                `json:"sessionId"`
		Dropped   []pricing.DroppedLine `json:"dropped"`
		Subtotal  string                `json:"subtotal"`
		Shipping  string                `json:"shipping"`
		Total     string                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "cs_test_1", resp.SessionID)
	require.Equal(t, "45.00", resp.Subtotal)
	require.Equal(t, "12.50", resp.Shipping)
	require.Equal(t, "57.50", resp.Total)
	require.Len(t, resp.Dropped, 1)
}

func TestCheckoutHandlerErrors(t *testing.T) {
	h := &Handler{Svc: newTestService(t, &fakeGateway{}, storeProducts()...)}

	rec := postCheckout(t, h, map[string]any{"items": []map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCheckout(t, h, map[string]any{"items": []map[string]any{{"id": "gone", "qty": 1}}})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "ITEMS_UNAVAILABLE")
	require.Contains(t, rec.Body.String(), `"gone"`)

	failing := &Handler{Svc: newTestService(t, &fakeGateway{err: errors.New("boom")}, storeProducts()...)}
	rec = postCheckout(t, failing, map[string]any{"items": []map[string]any{{"id": "cheese", "qty": 1}}})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "UPSTREAM_ERROR")
	require.NotContains(t, rec.Body.String(), "boom")
}
