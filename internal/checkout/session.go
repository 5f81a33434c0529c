// Package checkout shapes checkout-session payloads for the two payment
// processors: line item transformation, metadata size budgets, tiered
// shipping, and the thin clients that create the sessions.
package checkout

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Item is one cart line with its resolved catalog data.
type Item struct {
	ID          string
	Title       string
	Description string
	Image       string
	Price       decimal.Decimal
	Quantity    int
}

// Address is the buyer's shipping address, forwarded to the wallet provider.
type Address struct {
	Street1    string
	Street2    string
	City       string
	State      string
	PostalCode string
	Country    string
}

// SessionRequest is the input for creating a checkout session with either
// provider.
type SessionRequest struct {
	Provider string // "card" or "wallet"
	Email    string
	Items    []Item
	Address  Address
}

// SessionResult identifies the created provider session.
type SessionResult struct {
	Provider   string
	ID         string
	ApproveURL string
}

// CardSessionParams is the payload shape for the card processor's
// session-creation API. Unit amounts are minor currency units.
type CardSessionParams struct {
	Mode               string            `json:"mode"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	SuccessURL         string            `json:"success_url"`
	CancelURL          string            `json:"cancel_url"`
	AllowedCountries   []string          `json:"allowed_countries"`
	LineItems          []CardLineItem    `json:"line_items"`
	Metadata           map[string]string `json:"metadata"`
}

// CardLineItem is one priced row of a card session, shipping included.
type CardLineItem struct {
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Images          []string `json:"images,omitempty"`
	UnitAmountMinor int64    `json:"unit_amount"`
	Quantity        int      `json:"quantity"`
	Currency        string   `json:"currency"`
}

// WalletOrderParams is the payload shape for the wallet processor's
// order-creation API. All money values are decimal strings.
type WalletOrderParams struct {
	Intent       string          `json:"intent"`
	PurchaseUnit WalletOrderUnit `json:"purchase_unit"`
	ReturnURL    string          `json:"return_url"`
	CancelURL    string          `json:"cancel_url"`
	Shipping     *WalletShipping `json:"shipping,omitempty"`
}

type WalletOrderUnit struct {
	AmountValue   string            `json:"amount_value"`
	ItemTotal     string            `json:"item_total"`
	ShippingValue string            `json:"shipping_value"`
	Currency      string            `json:"currency"`
	Items         []WalletOrderItem `json:"items"`
	CustomID      string            `json:"custom_id"`
}

type WalletOrderItem struct {
	Name       string `json:"name"`
	UnitAmount string `json:"unit_amount"`
	Quantity   string `json:"quantity"`
}

type WalletShipping struct {
	Street1    string `json:"address_line_1"`
	Street2    string `json:"address_line_2,omitempty"`
	City       string `json:"admin_area_2"`
	State      string `json:"admin_area_1,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country_code"`
}

// SessionConfig holds the static session-creation settings.
type SessionConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CardClient creates checkout sessions with the card processor.
type CardClient interface {
	CreateSession(ctx context.Context, params CardSessionParams) (sessionID string, err error)
}

// WalletClient creates orders with the wallet processor.
type WalletClient interface {
	CreateOrder(ctx context.Context, params WalletOrderParams) (orderID, approveURL string, err error)
}

// Service builds provider payloads and creates sessions through the injected
// clients.
type Service struct {
	cfg      SessionConfig
	shipping *ShippingCalculator
	card     CardClient
	wallet   WalletClient
}

// NewService creates a checkout Service.
func NewService(cfg SessionConfig, shipping *ShippingCalculator, card CardClient, wallet WalletClient) *Service {
	return &Service{cfg: cfg, shipping: shipping, card: card, wallet: wallet}
}

// ErrNoItems is returned when a session is requested for an empty cart.
var ErrNoItems = errors.New("items required")

// ErrUnknownProvider is returned for a provider other than card or wallet.
var ErrUnknownProvider = errors.New("unknown payment provider")

// CreateSession shapes the provider payload for the request and creates the
// session, returning the provider's session/order id.
func (s *Service) CreateSession(ctx context.Context, req SessionRequest) (*SessionResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	shipping := s.shipping.Cost(totalQuantity(req.Items), req.Address.Country)

	switch req.Provider {
	case "card":
		id, err := s.card.CreateSession(ctx, s.buildCardSession(req, shipping))
		if err != nil {
			return nil, errors.Wrap(err, "create card session")
		}
		return &SessionResult{Provider: "card", ID: id}, nil
	case "wallet":
		params, err := s.buildWalletOrder(req, shipping)
		if err != nil {
			return nil, errors.Wrap(err, "build wallet order")
		}
		id, approveURL, err := s.wallet.CreateOrder(ctx, params)
		if err != nil {
			return nil, errors.Wrap(err, "create wallet order")
		}
		return &SessionResult{Provider: "wallet", ID: id, ApproveURL: approveURL}, nil
	default:
		return nil, ErrUnknownProvider
	}
}

// buildCardSession transforms cart items into card line items (minor units),
// appends the shipping row, and attaches the truncated metadata bag.
func (s *Service) buildCardSession(req SessionRequest, shipping decimal.Decimal) CardSessionParams {
	lines := make([]CardLineItem, 0, len(req.Items)+1)
	for _, it := range req.Items {
		lines = append(lines, CardLineItem{
			Name:            it.Title,
			Description:     it.Description,
			Images:          imagesOf(it),
			UnitAmountMinor: minorUnits(it.Price),
			Quantity:        it.Quantity,
			Currency:        s.cfg.Currency,
		})
	}
	lines = append(lines, CardLineItem{
		Name:            "Shipping",
		UnitAmountMinor: minorUnits(shipping),
		Quantity:        1,
		Currency:        s.cfg.Currency,
	})

	return CardSessionParams{
		Mode:               "payment",
		PaymentMethodTypes: []string{"card"},
		SuccessURL:         s.cfg.SuccessURL,
		CancelURL:          s.cfg.CancelURL,
		AllowedCountries:   []string{req.Address.Country},
		LineItems:          lines,
		Metadata:           CardMetadata(req.Email, req.Items),
	}
}

// buildWalletOrder transforms cart items into a single purchase unit whose
// breakdown totals are computed with decimal arithmetic and must reconcile
// exactly: amount = item_total + shipping.
func (s *Service) buildWalletOrder(req SessionRequest, shipping decimal.Decimal) (WalletOrderParams, error) {
	items := make([]WalletOrderItem, 0, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	itemTotal := decimal.Zero
	for _, it := range req.Items {
		unit := it.Price.Round(2)
		items = append(items, WalletOrderItem{
			Name:       it.Title,
			UnitAmount: unit.StringFixed(2),
			Quantity:   strconv.Itoa(it.Quantity),
		})
		ids = append(ids, it.ID)
		itemTotal = itemTotal.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	customID, err := WalletCustomData(req.Email, ids)
	if err != nil {
		return WalletOrderParams{}, err
	}

	params := WalletOrderParams{
		Intent:    "CAPTURE",
		ReturnURL: s.cfg.SuccessURL,
		CancelURL: s.cfg.CancelURL,
		PurchaseUnit: WalletOrderUnit{
			AmountValue:   itemTotal.Add(shipping).StringFixed(2),
			ItemTotal:     itemTotal.StringFixed(2),
			ShippingValue: shipping.StringFixed(2),
			Currency:      s.cfg.Currency,
			Items:         items,
			CustomID:      customID,
		},
	}
	if req.Address.Street1 != "" {
		params.Shipping = &WalletShipping{
			Street1:    req.Address.Street1,
			Street2:    req.Address.Street2,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
			Country:    req.Address.Country,
		}
	}
	return params, nil
}

// minorUnits converts a major-unit decimal price to integer minor units by
// exponent shift, never float multiplication.
func minorUnits(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func totalQuantity(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

func imagesOf(it Item) []string {
	if it.Image == "" {
		return nil
	}
	return []string{it.Image}
}
