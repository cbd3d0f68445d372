package pricing

import "strings"

// CartLine references a product in the customer's cart.
type CartLine struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"qty"`
}

// NormalizeCart merges repeated product ids by summing quantities, coerces
// quantities below one to one and drops blank ids. First-seen order is kept.
func NormalizeCart(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	pos := make(map[string]int, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if id == "" {
			continue
		}
		qty := l.Quantity
		if qty < 1 {
			qty = 1
		}
		if i, ok := pos[id]; ok {
			out[i].Quantity += qty
			continue
		}
		pos[id] = len(out)
		out = append(out, CartLine{ProductID: id, Quantity: qty})
	}
	return out
}

// ProductIDs lists the ids referenced by lines.
func ProductIDs(lines []CartLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
