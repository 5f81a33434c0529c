package api

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/freshness"
)

type lastUpdatedResponse struct {
	Type      string    `json:"type"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// lastUpdated returns the freshness marker for a resource type so clients
// can decide whether a refetch is due. Orders markers are scoped by email.
func (h *Handler) lastUpdated(w http.ResponseWriter, r *http.Request) {
	typ := freshness.Type(r.URL.Query().Get("type"))
	email := r.URL.Query().Get("email")

	switch typ {
	case freshness.TypeOrders:
		if email == "" {
			writeError(w, http.StatusBadRequest, "email required for orders markers")
			return
		}
	case freshness.TypeProducts:
		email = ""
	default:
		writeError(w, http.StatusBadRequest, "type must be orders or products")
		return
	}

	m, err := h.markers.Get(r.Context(), typ, email)
	if err != nil {
		if errors.Is(err, freshness.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no marker recorded")
			return
		}
		h.logError(r, "Get freshness marker failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, lastUpdatedResponse{
		Type:      string(m.Type),
		Email:     m.Email,
		UpdatedAt: m.UpdatedAt,
	})
}
