package provider

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
)

// --- Helpers ---

func cardBody(t *testing.T, session map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type": "checkout.session.completed",
		"data": map[string]any{"object": session},
	})
	require.NoError(t, err)
	return body
}

func cardSessionFixture() map[string]any {
	return map[string]any{
		"id":            "cs_test_123",
		"amount_total":  2950,
		"total_details": map[string]any{"amount_shipping": 450},
		"metadata": map[string]string{
			"email":      "buyer@example.com",
			"images":     `["a.jpg","b.jpg"]`,
			"title":      `["Widget","Gadget"]`,
			"itemIds":    `["p1","p2"]`,
			"quantities": `[2,1]`,
		},
		"payment_intent": map[string]any{
			"id": "pi_123",
			"charges": map[string]any{
				"data": []map[string]any{{"payment_method": "pm_123"}},
			},
		},
	}
}

func normalizeCard(t *testing.T, session map[string]any) (*order.Event, error) {
	t.Helper()
	ev, recognized, err := Parse(ProviderCard, cardBody(t, session))
	require.NoError(t, err)
	require.True(t, recognized)
	return ev.Normalize()
}

// --- Tests ---

func TestParseCard_IgnoredEventType(t *testing.T) {
	body := []byte(`{"type":"payment_intent.created","data":{"object":{}}}`)

	ev, recognized, err := Parse(ProviderCard, body)
	require.NoError(t, err)
	assert.False(t, recognized)
	assert.Nil(t, ev)
}

func TestParseCard_MalformedJSON(t *testing.T) {
	_, _, err := Parse(ProviderCard, []byte(`{"type":`))
	require.Error(t, err)
}

func TestCardNormalize_Complete(t *testing.T) {
	got, err := normalizeCard(t, cardSessionFixture())
	require.NoError(t, err)

	assert.Equal(t, "cs_test_123", got.SessionID)
	assert.Equal(t, "buyer@example.com", got.Email)
	assert.True(t, decimal.RequireFromString("29.50").Equal(got.Amount))
	assert.True(t, decimal.RequireFromString("4.50").Equal(got.AmountShipping))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, got.Images)
	assert.Equal(t, []string{"Widget", "Gadget"}, got.Titles)
	assert.Equal(t, "pm_123", got.PaymentID)
	assert.Equal(t, []order.LineItem{
		{ItemID: "p1", Quantity: 2},
		{ItemID: "p2", Quantity: 1},
	}, got.LineItems)
	assert.False(t, got.SkipFulfillment())
}

func TestCardNormalize_UnexpandedPaymentIntent(t *testing.T) {
	s := cardSessionFixture()
	s["payment_intent"] = "pi_123"

	got, err := normalizeCard(t, s)
	require.NoError(t, err)

	assert.Empty(t, got.PaymentID)
	assert.True(t, got.SkipFulfillment())
}

func TestCardNormalize_EmptyCharges(t *testing.T) {
	s := cardSessionFixture()
	s["payment_intent"] = map[string]any{
		"id":      "pi_123",
		"charges": map[string]any{"data": []map[string]any{}},
	}

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.True(t, got.SkipFulfillment())
}

func TestCardNormalize_MalformedDisplayMetadata(t *testing.T) {
	s := cardSessionFixture()
	s["metadata"] = map[string]string{
		"email":      "buyer@example.com",
		"images":     `["a.jpg", "b.`, // truncated mid-value
		"title":      `not json at all`,
		"itemIds":    `["p1"]`,
		"quantities": `[1]`,
	}

	got, err := normalizeCard(t, s)
	require.NoError(t, err)

	assert.Empty(t, got.Images)
	assert.Empty(t, got.Titles)
	assert.Equal(t, []order.LineItem{{ItemID: "p1", Quantity: 1}}, got.LineItems)
}

func TestCardNormalize_SingleStringMetadata(t *testing.T) {
	s := cardSessionFixture()
	s["metadata"] = map[string]string{
		"email":   "buyer@example.com",
		"title":   `"Just One"`,
		"itemIds": `["p1"]`,
	}

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Just One"}, got.Titles)
}

func TestCardNormalize_StringQuantities(t *testing.T) {
	s := cardSessionFixture()
	s["metadata"].(map[string]string)["quantities"] = `["2","3"]`

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.Equal(t, []order.LineItem{
		{ItemID: "p1", Quantity: 2},
		{ItemID: "p2", Quantity: 3},
	}, got.LineItems)
}

func TestCardNormalize_TruncatedLineItemLists(t *testing.T) {
	s := cardSessionFixture()
	md := s["metadata"].(map[string]string)
	md["itemIds"] = `["p1","p2","p3"]`
	md["quantities"] = `[2,1]` // quantities list lost its tail

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.Equal(t, []order.LineItem{
		{ItemID: "p1", Quantity: 2},
		{ItemID: "p2", Quantity: 1},
	}, got.LineItems)
}

func TestCardNormalize_DropsInvalidPairs(t *testing.T) {
	s := cardSessionFixture()
	md := s["metadata"].(map[string]string)
	md["itemIds"] = `["p1","","p3"]`
	md["quantities"] = `[2,5,0]`

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.Equal(t, []order.LineItem{{ItemID: "p1", Quantity: 2}}, got.LineItems)
}

func TestCardNormalize_MissingEmail(t *testing.T) {
	s := cardSessionFixture()
	s["metadata"] = map[string]string{"itemIds": `["p1"]`}

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "email", nErr.Field)
}

func TestCardNormalize_MissingAmount(t *testing.T) {
	s := cardSessionFixture()
	delete(s, "amount_total")

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "amount", nErr.Field)
}

func TestCardNormalize_MissingShipping(t *testing.T) {
	s := cardSessionFixture()
	s["total_details"] = map[string]any{}

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "amountShipping", nErr.Field)
}

func TestCardNormalize_ShippingExceedsTotal(t *testing.T) {
	s := cardSessionFixture()
	s["amount_total"] = 100
	s["total_details"] = map[string]any{"amount_shipping": 450}

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "amountShipping", nErr.Field)
}

func TestCardNormalize_NegativeTotal(t *testing.T) {
	s := cardSessionFixture()
	s["amount_total"] = -500
	s["total_details"] = map[string]any{"amount_shipping": -600}

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "amount", nErr.Field)
}

func TestCardNormalize_NegativeShipping(t *testing.T) {
	s := cardSessionFixture()
	s["amount_total"] = 500
	s["total_details"] = map[string]any{"amount_shipping": -100}

	_, err := normalizeCard(t, s)

	var nErr *NormalizationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "amountShipping", nErr.Field)
}

func TestCardNormalize_ZeroTotalFreeOrder(t *testing.T) {
	s := cardSessionFixture()
	s["amount_total"] = 0
	s["total_details"] = map[string]any{"amount_shipping": 0}

	got, err := normalizeCard(t, s)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())
}

// Minor-unit conversion must be exact for every total, including the amounts
// where binary floating point division by 100 rounds the cents.
func TestCardNormalize_MinorUnitsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	totals := []int64{0, 1, 99, 100, 101, 2499, 1_000_000_001}
	for range 1000 {
		totals = append(totals, rng.Int63n(100_000_000))
	}

	for _, n := range totals {
		s := cardSessionFixture()
		s["amount_total"] = n
		s["total_details"] = map[string]any{"amount_shipping": 0}

		got, err := normalizeCard(t, s)
		require.NoError(t, err)

		want := decimal.RequireFromString(fmt.Sprintf("%d.%02d", n/100, n%100))
		require.True(t, want.Equal(got.Amount), "total %d: want %s, got %s", n, want, got.Amount)
	}
}
