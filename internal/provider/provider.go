// Package provider classifies, verifies, and normalizes inbound payment
// webhook payloads from the two supported processors into the canonical
// order event.
package provider

import (
	"fmt"
	"net/http"

	"github.com/xenking/storefront/internal/domain/order"
)

// Provider tags the two interchangeable payment backends.
type Provider string

const (
	ProviderCard   Provider = "cardProcessor"
	ProviderWallet Provider = "walletProcessor"
)

// Webhook headers. The card processor signs every delivery; the wallet
// processor announces its signing algorithm and carries the transmission
// signature separately.
const (
	HeaderCardSignature  = "Card-Signature"
	HeaderWalletAuthAlgo = "Wallet-Auth-Algo"
	HeaderWalletSig      = "Wallet-Transmission-Sig"
)

// Completed-payment event types recognized by the pipeline. Anything else is
// intentionally ignored, not an error.
const (
	cardEventCompleted   = "checkout.session.completed"
	walletEventCompleted = "checkout.order.approved"
)

// Classify determines which processor sent the request from its headers.
// The second return is false when neither provider's headers are present.
func Classify(h http.Header) (Provider, bool) {
	switch {
	case h.Get(HeaderCardSignature) != "":
		return ProviderCard, true
	case h.Get(HeaderWalletAuthAlgo) != "":
		return ProviderWallet, true
	default:
		return "", false
	}
}

// Event is one classified provider payload, ready for normalization.
// It is a tagged union: either *CardEvent or *WalletEvent.
type Event interface {
	Provider() Provider

	// Normalize converts the provider payload into the canonical order
	// event. Failure to derive a required field (email, either amount)
	// returns a *NormalizationError; display fields degrade instead of
	// failing, and a missing payment reference merely marks the event as
	// skip-fulfillment.
	Normalize() (*order.Event, error)
}

// Parse decodes the raw webhook body for the given provider. recognized is
// false when the payload is well-formed but not a completed-payment event;
// such deliveries are filtered out with no side effects.
func Parse(p Provider, body []byte) (ev Event, recognized bool, err error) {
	switch p {
	case ProviderCard:
		return parseCardEvent(body)
	case ProviderWallet:
		return parseWalletEvent(body)
	default:
		return nil, false, fmt.Errorf("unknown provider %q", p)
	}
}

// NormalizationError reports that a required field could not be derived from
// the provider payload. The event is dropped; the provider's redelivery will
// fail the same way, so there is no point retrying.
type NormalizationError struct {
	Provider Provider
	Field    string
	Reason   string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s event: field %s: %s", e.Provider, e.Field, e.Reason)
}
