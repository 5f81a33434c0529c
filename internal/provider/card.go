package provider

import (
	"encoding/json"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// cardEnvelope is the card processor's webhook envelope: the session object
// nested under data.object, with the event type alongside.
type cardEnvelope struct {
	Type string      `json:"type"`
	Data cardPayload `json:"data"`
}

type cardPayload struct {
	Object cardSession `json:"object"`
}

// CardEvent is a completed checkout session from the card processor.
//
// Totals arrive in minor currency units. Line item data arrives in an opaque
// metadata string bag where each value is itself JSON-encoded and may have
// been truncated when the session was created (see internal/checkout), so
// every metadata field is re-parsed tolerantly.
type CardEvent struct {
	Session cardSession
}

type cardSession struct {
	ID            string            `json:"id"`
	AmountTotal   *int64            `json:"amount_total"`
	TotalDetails  cardTotalDetails  `json:"total_details"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent cardPaymentIntent `json:"payment_intent"`
}

type cardTotalDetails struct {
	AmountShipping *int64 `json:"amount_shipping"`
}

// cardPaymentIntent may arrive as a bare id string or, when the webhook is
// configured with expansion, as the full object carrying its charges.
type cardPaymentIntent struct {
	ID      string
	Charges []cardCharge
}

type cardCharge struct {
	PaymentMethod string `json:"payment_method"`
}

func (p *cardPaymentIntent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.ID)
	}
	var obj struct {
		ID      string `json:"id"`
		Charges struct {
			Data []cardCharge `json:"data"`
		} `json:"charges"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ID = obj.ID
	p.Charges = obj.Charges.Data
	return nil
}

func parseCardEvent(body []byte) (Event, bool, error) {
	var env cardEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, errors.Wrap(err, "decode card envelope")
	}
	if env.Type != cardEventCompleted {
		return nil, false, nil
	}
	return &CardEvent{Session: env.Data.Object}, true, nil
}

func (e *CardEvent) Provider() Provider { return ProviderCard }

// Normalize converts the session into the canonical event. Minor-unit totals
// are scaled by shifting the decimal exponent, never by float division.
func (e *CardEvent) Normalize() (*order.Event, error) {
	s := &e.Session

	if s.AmountTotal == nil {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "amount", Reason: "amount_total missing"}
	}
	if s.TotalDetails.AmountShipping == nil {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "amountShipping", Reason: "total_details.amount_shipping missing"}
	}

	email := s.Metadata["email"]
	if email == "" {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "email", Reason: "metadata.email missing"}
	}

	amount := decimal.New(*s.AmountTotal, -2)
	shipping := decimal.New(*s.TotalDetails.AmountShipping, -2)
	if amount.IsNegative() {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "amount", Reason: "negative amount_total"}
	}
	if shipping.IsNegative() {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "amountShipping", Reason: "negative amount_shipping"}
	}
	if shipping.GreaterThan(amount) {
		return nil, &NormalizationError{Provider: ProviderCard, Field: "amountShipping", Reason: "shipping exceeds total"}
	}

	// Display fields and line items degrade per-field: malformed or absent
	// metadata yields empty lists, not a fatal error.
	images := parseStringList(s.Metadata["images"])
	titles := parseStringList(s.Metadata["title"])
	itemIDs := parseStringList(s.Metadata["itemIds"])
	quantities := parseIntList(s.Metadata["quantities"])

	// The ids list may be shorter than the quantities list (or vice versa)
	// after upstream truncation; zip only the pairs that survived.
	n := min(len(itemIDs), len(quantities))
	items := make([]order.LineItem, 0, n)
	for i := range n {
		if itemIDs[i] == "" || quantities[i] <= 0 {
			continue
		}
		items = append(items, order.LineItem{ItemID: itemIDs[i], Quantity: quantities[i]})
	}

	var paymentID string
	if len(s.PaymentIntent.Charges) > 0 {
		paymentID = s.PaymentIntent.Charges[0].PaymentMethod
	}

	return &order.Event{
		SessionID:      s.ID,
		Email:          email,
		Amount:         amount,
		AmountShipping: shipping,
		Images:         images,
		Titles:         titles,
		PaymentID:      paymentID,
		LineItems:      items,
	}, nil
}

// parseStringList decodes a JSON-encoded value from the metadata string bag
// into a list of strings. A JSON string yields a single-element list; any
// malformed input yields nil.
func parseStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	d := jx.DecodeStr(raw)
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil
		}
		return []string{s}
	case jx.Array:
		var out []string
		err := d.Arr(func(d *jx.Decoder) error {
			s, err := d.Str()
			if err != nil {
				return err
			}
			out = append(out, s)
			return nil
		})
		if err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// parseIntList decodes a JSON array of quantities. Elements may be numbers
// or numeric strings; malformed input yields nil.
func parseIntList(raw string) []int {
	if raw == "" {
		return nil
	}
	d := jx.DecodeStr(raw)
	if d.Next() != jx.Array {
		return nil
	}
	var out []int
	err := d.Arr(func(d *jx.Decoder) error {
		switch d.Next() {
		case jx.Number:
			n, err := d.Int()
			if err != nil {
				return err
			}
			out = append(out, n)
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(s)
			if err != nil {
				return err
			}
			out = append(out, n)
		default:
			return errors.New("unexpected quantity type")
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return out
}
