package shipping

import (
	"errors"
	"net/http"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/money"
)

// Handler exposes the shipping calculator endpoint.
type Handler struct {
	Svc *Service
}

type calculateRequest struct {
	ProductIDs      []string `json:"productIds" validate:"required,min=1,max=50,dive,required"`
	CustomerAddress *Address `json:"customerAddress" validate:"required"`
}

// BreakdownView is the JSON form of Breakdown. Insurance is omitted when not charged.
type BreakdownView struct {
	Shipping  money.Display  `json:"shipping"`
	Packaging money.Display  `json:"packaging"`
	Insurance *money.Display `json:"insurance,omitempty"`
	Total     money.Display  `json:"total"`
}

// EstimateView is the shipping object returned by the calculator endpoint.
type EstimateView struct {
	Cost          money.Display `json:"cost"`
	ServiceName   string        `json:"serviceName"`
	EstimatedDays int           `json:"estimatedDays"`
	Breakdown     BreakdownView `json:"breakdown"`
	UsedFallback  bool          `json:"usedFallback"`
}

// ToView renders an estimate with decimal display amounts.
func ToView(e Estimate) EstimateView {
	v := EstimateView{
		Cost:          money.Show(e.Cost),
		ServiceName:   e.ServiceName,
		EstimatedDays: e.EstimatedDays,
		UsedFallback:  e.UsedFallback,
		Breakdown: BreakdownView{
			Shipping:  money.Show(e.Breakdown.Shipping),
			Packaging: money.Show(e.Breakdown.Packaging),
			Total:     money.Show(e.Breakdown.Total),
		},
	}
	if e.Breakdown.Insurance > 0 {
		ins := money.Show(e.Breakdown.Insurance)
		v.Breakdown.Insurance = &ins
	}
	return v
}

// Calculate handles POST /calculate-shipping.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "shipping service not configured", nil)
		return
	}
	var req calculateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	est, err := h.Svc.Calculate(r.Context(), req.ProductIDs, *req.CustomerAddress)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"success": true, "shipping": ToView(est)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrMissingPostalCode):
		common.WriteError(w, common.BadRequest(err.Error(), err))
	case errors.Is(err, ErrNothingToShip):
		common.WriteError(w, common.Unavailable("none of the requested products can be shipped", err))
	default:
		common.WriteError(w, common.Internal("failed to calculate shipping", err))
	}
}
