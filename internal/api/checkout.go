package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/product"
)

type sessionRequest struct {
	Provider string            `json:"provider"`
	Email    string            `json:"email"`
	Items    []sessionItem     `json:"items"`
	Address  sessionAddressReq `json:"address"`
}

type sessionItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type sessionAddressReq struct {
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type sessionResponse struct {
	Provider   string `json:"provider"`
	ID         string `json:"id"`
	ApproveURL string `json:"approveUrl,omitempty"`
}

// createSession resolves the cart against the catalog and creates a checkout
// session with the requested provider.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}

	ctx := r.Context()
	items := make([]checkout.Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			writeError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("quantity must be greater than 0 for product %s", it.ID))
			return
		}
		p, err := h.products.GetByID(ctx, it.ID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				writeError(w, http.StatusUnprocessableEntity,
					fmt.Sprintf("product %s not found", it.ID))
				return
			}
			h.logError(r, "Get product failed", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		items = append(items, checkout.Item{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Image:       h.resolveImage(p.Image),
			Price:       p.Price,
			Quantity:    it.Quantity,
		})
	}

	result, err := h.checkout.CreateSession(ctx, checkout.SessionRequest{
		Provider: req.Provider,
		Email:    req.Email,
		Items:    items,
		Address: checkout.Address{
			Street1:    req.Address.Street1,
			Street2:    req.Address.Street2,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		},
	})
	if err != nil {
		if errors.Is(err, checkout.ErrUnknownProvider) {
			writeError(w, http.StatusBadRequest, "unknown payment provider")
			return
		}
		h.logError(r, "Create checkout session failed", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Provider:   result.Provider,
		ID:         result.ID,
		ApproveURL: result.ApproveURL,
	})
}
