// Package webhook exposes the inbound payment-provider webhook endpoint and
// drives the fulfillment pipeline for each delivery.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/fulfill"
	"github.com/xenking/storefront/internal/provider"
)

// maxBodyBytes bounds webhook payload reads. Provider payloads are a few KB;
// anything near this limit is garbage.
const maxBodyBytes = 1 << 20

// Fulfiller applies a normalized event's side effects.
type Fulfiller interface {
	Fulfill(ctx context.Context, ev *order.Event) (*fulfill.Report, error)
}

// Handler is the webhook endpoint. Per delivery:
//
//	verify signature -> classify event type -> normalize -> fulfill
//
// Verification and normalization failures are fatal for the request (400,
// provider redelivers per its own policy). Unrecognized event types are
// intentionally filtered with a 200 and no side effects.
type Handler struct {
	verifier  *provider.Verifier
	fulfiller Fulfiller
}

// NewHandler creates the webhook Handler.
func NewHandler(verifier *provider.Verifier, fulfiller Fulfiller) *Handler {
	return &Handler{verifier: verifier, fulfiller: fulfiller}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Wrap(err, "read body"))
		return
	}

	p, ok := provider.Classify(r.Header)
	if !ok {
		lg.Warn("Webhook without provider headers")
		writeError(w, errors.New("unrecognized provider"))
		return
	}

	if err := h.verifier.Verify(p, r.Header, body); err != nil {
		lg.Warn("Webhook verification failed",
			zap.String("provider", string(p)), zap.Error(err))
		writeError(w, err)
		return
	}

	ev, recognized, err := provider.Parse(p, body)
	if err != nil {
		lg.Warn("Webhook payload parse failed",
			zap.String("provider", string(p)), zap.Error(err))
		writeError(w, err)
		return
	}
	if !recognized {
		// Verified but irrelevant event type: acknowledge and move on.
		w.WriteHeader(http.StatusOK)
		return
	}

	normalized, err := ev.Normalize()
	if err != nil {
		lg.Warn("Webhook normalization failed",
			zap.String("provider", string(p)), zap.Error(err))
		writeError(w, err)
		return
	}

	report, err := h.fulfiller.Fulfill(ctx, normalized)
	if err != nil {
		lg.Error("Fulfillment failed",
			zap.String("provider", string(p)),
			zap.String("session_id", normalized.SessionID),
			zap.Error(err))
		writeError(w, err)
		return
	}

	lg.Info("Webhook fulfilled",
		zap.String("provider", string(p)),
		zap.String("session_id", report.SessionID),
		zap.Bool("order_written", report.OrderWritten),
		zap.Bool("already_processed", report.AlreadyProcessed),
		zap.Int("decrements", len(report.Applied)),
		zap.Int("skipped_items", len(report.Skipped)),
	)
	w.WriteHeader(http.StatusOK)
}

// writeError answers with the provider-facing 400 contract. Error messages
// here come from our own taxonomy and carry no secrets.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Webhook error: %s", err.Error())
}
