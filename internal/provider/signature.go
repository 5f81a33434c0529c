package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// VerificationError indicates a webhook delivery failed authenticity checks.
// It is fatal for that request only; the provider's own redelivery policy
// governs retries.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "signature verification failed: " + e.Reason
}

// Verifier authenticates webhook deliveries against each provider's shared
// secret. The card processor signs "<timestamp>.<body>" and the signature
// header carries both parts; the wallet processor signs the raw body and
// announces its algorithm in a separate header.
type Verifier struct {
	cardSecret   []byte
	walletSecret []byte
	tolerance    time.Duration
	now          func() time.Time
}

// DefaultTolerance bounds the accepted age of a signed card delivery.
const DefaultTolerance = 5 * time.Minute

// NewVerifier creates a Verifier for the given shared secrets.
func NewVerifier(cardSecret, walletSecret []byte) *Verifier {
	return &Verifier{
		cardSecret:   cardSecret,
		walletSecret: walletSecret,
		tolerance:    DefaultTolerance,
		now:          time.Now,
	}
}

// Verify authenticates the delivery for the classified provider.
func (v *Verifier) Verify(p Provider, h http.Header, body []byte) error {
	switch p {
	case ProviderCard:
		return v.verifyCard(h.Get(HeaderCardSignature), body)
	case ProviderWallet:
		return v.verifyWallet(h.Get(HeaderWalletAuthAlgo), h.Get(HeaderWalletSig), body)
	default:
		return &VerificationError{Reason: fmt.Sprintf("unknown provider %q", p)}
	}
}

// verifyCard checks a "t=<unix>,v1=<hex>" signature header: the HMAC-SHA256
// of "<t>.<body>" under the card endpoint secret, with the timestamp inside
// the tolerance window to blunt replays.
func (v *Verifier) verifyCard(header string, body []byte) error {
	if header == "" {
		return &VerificationError{Reason: "missing signature header"}
	}

	var (
		ts   int64
		sigs [][]byte
	)
	for part := range strings.SplitSeq(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return &VerificationError{Reason: "malformed timestamp"}
			}
			ts = n
		case "v1":
			sig, err := hex.DecodeString(val)
			if err != nil {
				return &VerificationError{Reason: "malformed signature"}
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return &VerificationError{Reason: "incomplete signature header"}
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return &VerificationError{Reason: "timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, v.cardSecret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return &VerificationError{Reason: "signature mismatch"}
}

// verifyWallet checks the transmission signature: HMAC-SHA256 over the raw
// body under the wallet webhook secret. The algorithm header doubles as the
// provider classification marker, so it must name the one supported scheme.
func (v *Verifier) verifyWallet(algo, sigHex string, body []byte) error {
	if !strings.EqualFold(algo, "HMAC-SHA256") {
		return &VerificationError{Reason: fmt.Sprintf("unsupported auth algorithm %q", algo)}
	}
	if sigHex == "" {
		return &VerificationError{Reason: "missing transmission signature"}
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return &VerificationError{Reason: "malformed transmission signature"}
	}

	mac := hmac.New(sha256.New, v.walletSecret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return &VerificationError{Reason: "signature mismatch"}
	}
	return nil
}
