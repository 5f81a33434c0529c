package provider

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// walletPlaceholderImage is shown for wallet orders: the wallet processor's
// payload carries no product images.
const walletPlaceholderImage = "https://upload.wikimedia.org/wikipedia/commons/thumb/6/65/No-Image-Placeholder.svg/832px-No-Image-Placeholder.svg.png"

// WalletEvent is an approved order from the wallet processor.
//
// Totals are decimal strings inside the purchase-unit breakdown. Items and
// titles come from the structured items list; the customer email and the
// purchasable item ids travel in a compact JSON blob embedded in the
// purchase unit's custom reference field, which may have been truncated to
// fit the provider's 127-character limit.
type WalletEvent struct {
	Resource walletResource
}

type walletEnvelope struct {
	EventType string         `json:"event_type"`
	Resource  walletResource `json:"resource"`
}

type walletResource struct {
	ID            string               `json:"id"`
	PurchaseUnits []walletPurchaseUnit `json:"purchase_units"`
}

type walletPurchaseUnit struct {
	Amount   walletAmount `json:"amount"`
	Items    []walletItem `json:"items"`
	CustomID string       `json:"custom_id"`
}

type walletAmount struct {
	Value     string           `json:"value"`
	Breakdown *walletBreakdown `json:"breakdown"`
}

type walletBreakdown struct {
	Shipping *walletMoney `json:"shipping"`
}

type walletMoney struct {
	Value string `json:"value"`
}

type walletItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
}

// walletCustomData is the compact blob embedded in custom_id at session
// creation time (see internal/checkout). ItemIDs may hold fewer entries than
// the purchase unit's items list when ids were popped to fit the size cap.
type walletCustomData struct {
	Email   string   `json:"email"`
	ItemIDs []string `json:"itemIds"`
}

func parseWalletEvent(body []byte) (Event, bool, error) {
	var env walletEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, errors.Wrap(err, "decode wallet event")
	}
	if !strings.EqualFold(env.EventType, walletEventCompleted) {
		return nil, false, nil
	}
	return &WalletEvent{Resource: env.Resource}, true, nil
}

func (e *WalletEvent) Provider() Provider { return ProviderWallet }

// Normalize converts the approved order into the canonical event. All money
// parsing is decimal-safe; monetary strings never pass through floats.
func (e *WalletEvent) Normalize() (*order.Event, error) {
	if len(e.Resource.PurchaseUnits) == 0 {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amount", Reason: "no purchase units"}
	}
	pu := &e.Resource.PurchaseUnits[0]

	amount, err := decimal.NewFromString(pu.Amount.Value)
	if err != nil {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amount", Reason: "unparseable amount.value"}
	}
	if amount.IsNegative() {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amount", Reason: "negative amount.value"}
	}
	if pu.Amount.Breakdown == nil || pu.Amount.Breakdown.Shipping == nil {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amountShipping", Reason: "breakdown.shipping missing"}
	}
	shipping, err := decimal.NewFromString(pu.Amount.Breakdown.Shipping.Value)
	if err != nil {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amountShipping", Reason: "unparseable breakdown.shipping.value"}
	}
	if shipping.IsNegative() {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amountShipping", Reason: "negative breakdown.shipping.value"}
	}
	if shipping.GreaterThan(amount) {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "amountShipping", Reason: "shipping exceeds total"}
	}

	var custom walletCustomData
	if err := json.Unmarshal([]byte(pu.CustomID), &custom); err != nil {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "email", Reason: "unparseable custom data blob"}
	}
	if custom.Email == "" {
		return nil, &NormalizationError{Provider: ProviderWallet, Field: "email", Reason: "custom data email missing"}
	}

	titles := make([]string, 0, len(pu.Items))
	for _, it := range pu.Items {
		titles = append(titles, it.Name)
	}

	// Pair the surviving ids with the structured items' quantities. A
	// truncated ids list means trailing items go unreconciled; that is the
	// known lossy path, not an error.
	n := min(len(custom.ItemIDs), len(pu.Items))
	items := make([]order.LineItem, 0, n)
	for i := range n {
		if custom.ItemIDs[i] == "" {
			continue
		}
		qty, err := strconv.Atoi(pu.Items[i].Quantity)
		if err != nil || qty <= 0 {
			continue
		}
		items = append(items, order.LineItem{ItemID: custom.ItemIDs[i], Quantity: qty})
	}

	return &order.Event{
		SessionID:      e.Resource.ID,
		Email:          custom.Email,
		Amount:         amount,
		AmountShipping: shipping,
		Images:         []string{walletPlaceholderImage},
		Titles:         titles,
		// The approved order's own id is the payment reference.
		PaymentID: e.Resource.ID,
		LineItems: items,
	}, nil
}
