package api

import "net/http"

type productResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Image       string  `json:"image"`
	Quantity    int64   `json:"quantity"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.logError(r, "List products failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = productResponse{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price.InexactFloat64(),
			Image:       h.resolveImage(p.Image),
			Quantity:    p.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
