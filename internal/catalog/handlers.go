package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/craftshop-api/internal/common"
	"github.com/noah-isme/craftshop-api/internal/money"
)

// Handler exposes read-only catalog endpoints.
type Handler struct {
	Gateway Gateway
}

type productView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    Category       `json:"category"`
	Price       money.Display  `json:"price"`
	SalePrice   *money.Display `json:"salePrice,omitempty"`
	StockStatus StockStatus    `json:"stockStatus"`
	ImagePath   string         `json:"imagePath,omitempty"`
}

func toView(p Product) productView {
	v := productView{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       money.Show(p.PriceCents),
		StockStatus: p.StockStatus,
		ImagePath:   p.ImagePath,
	}
	if p.SalePriceCents != nil {
		sale := money.Show(*p.SalePriceCents)
		v.SalePrice = &sale
	}
	return v
}

// ListByCategory handles GET /products?category=...
func (h *Handler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		common.WriteError(w, common.BadRequest("category query parameter is required", nil))
		return
	}
	products, err := h.Gateway.ProductsByCategory(r.Context(), Category(category))
	if err != nil {
		common.WriteError(w, common.Internal("failed to load products", err))
		return
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, toView(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Get handles GET /products/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	products, err := h.Gateway.ProductsByIDs(r.Context(), []string{id})
	if err != nil {
		common.WriteError(w, common.Internal("failed to load product", err))
		return
	}
	if len(products) == 0 {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "product not found", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toView(products[0])})
}
