package checkout

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/money"
	"github.com/noah-isme/craftshop-api/internal/pricing"
	"github.com/noah-isme/craftshop-api/internal/shipping"
)

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc *Service
}

type checkoutItem struct {
	ID  string `json:"id" validate:"required"`
	Qty int    `json:"qty" validate:"gte=0,lte=100"`
}

type checkoutRequest struct {
	Items              []checkoutItem    `json:"items" validate:"required,min=1,max=50,dive"`
	CalculatedShipping *decimal.Decimal  `json:"calculatedShipping"`
	CustomerAddress    *shipping.Address `json:"customerAddress"`
}

type checkoutResponse struct {
	URL       string                `json:"url"`
	SessionID string                `json:"sessionId"`
	Dropped   []pricing.DroppedLine `json:"dropped"`
	Subtotal  money.Display         `json:"subtotal"`
	Shipping  money.Display         `json:"shipping"`
	Total     money.Display         `json:"total"`
}

// Checkout handles POST /checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload checkoutRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}

	req := Request{Destination: payload.CustomerAddress}
	for _, it := range payload.Items {
		req.Items = append(req.Items, pricing.CartLine{ProductID: it.ID, Quantity: it.Qty})
	}
	if payload.CalculatedShipping != nil {
		supplied := money.FromDecimal(*payload.CalculatedShipping).NonNegative()
		req.CalculatedShipping = &supplied
	}

	res, err := h.Svc.Checkout(r.Context(), req)
	if err != nil {
		h.writeError(w, err, res)
		return
	}
	dropped := res.Dropped
	if dropped == nil {
		dropped = []pricing.DroppedLine{}
	}
	common.JSON(w, http.StatusOK, checkoutResponse{
		URL:       res.URL,
		SessionID: res.SessionID,
		Dropped:   dropped,
		Subtotal:  money.Show(res.Totals.Subtotal),
		Shipping:  money.Show(res.Totals.Shipping),
		Total:     money.Show(res.Totals.Total),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, res Result) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.WriteError(w, common.BadRequest("cart is empty", err))
	case errors.Is(err, pricing.ErrNoPurchasableItems), errors.Is(err, ErrEmptySession):
		common.WriteError(w, common.Unavailable("none of the items in your cart are available for purchase", err).
			WithDetails(map[string]any{"dropped": res.Dropped}))
	case errors.Is(err, ErrGateway):
		common.WriteError(w, common.Upstream("unable to start checkout with the payment provider", err))
	default:
		common.WriteError(w, common.Internal("checkout failed", err))
	}
}
