// Package api serves the storefront's JSON endpoints: catalog listing,
// checkout-session creation, and freshness markers for cache invalidation.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/checkout"
	"github.com/xenking/storefront/internal/domain/freshness"
	"github.com/xenking/storefront/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler implements the storefront API endpoints.
type Handler struct {
	products     product.Repository
	markers      freshness.Tracker
	checkout     *checkout.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(cfg Config, products product.Repository, markers freshness.Tracker, checkoutSvc *checkout.Service) *Handler {
	return &Handler{
		products:     products,
		markers:      markers,
		checkout:     checkoutSvc,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("POST /api/checkout-session", h.createSession)
	mux.HandleFunc("GET /api/last-updated", h.lastUpdated)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

func (h *Handler) resolveImage(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
}
