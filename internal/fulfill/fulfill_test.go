package fulfill

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/freshness"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	upserted []*order.Order
	err      error
}

func (m *mockOrderRepo) Upsert(_ context.Context, o *order.Order) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, o)
	return nil
}

type decrementCall struct {
	id  string
	qty int
}

type mockProductRepo struct {
	missing    map[string]bool
	failing    map[string]error
	decrements []decrementCall
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, _ string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) Upsert(_ context.Context, _ *product.Product) error { return nil }

func (m *mockProductRepo) DecrementQuantity(_ context.Context, id string, qty int) error {
	if m.missing[id] {
		return product.ErrNotFound
	}
	if err := m.failing[id]; err != nil {
		return err
	}
	m.decrements = append(m.decrements, decrementCall{id: id, qty: qty})
	return nil
}

type touchCall struct {
	typ   freshness.Type
	email string
}

type mockTracker struct {
	touches []touchCall
	err     error
}

func (m *mockTracker) Touch(_ context.Context, typ freshness.Type, email string) error {
	if m.err != nil {
		return m.err
	}
	m.touches = append(m.touches, touchCall{typ: typ, email: email})
	return nil
}

func (m *mockTracker) Get(_ context.Context, _ freshness.Type, _ string) (*freshness.Marker, error) {
	return nil, freshness.ErrNotFound
}

type mockLedger struct {
	seen map[string]bool
	err  error
}

func (m *mockLedger) MarkProcessed(_ context.Context, sessionID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[sessionID] {
		return false, nil
	}
	m.seen[sessionID] = true
	return true, nil
}

// --- Helpers ---

type fixture struct {
	orders   *mockOrderRepo
	products *mockProductRepo
	markers  *mockTracker
	ledger   *mockLedger
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		orders:   &mockOrderRepo{},
		products: &mockProductRepo{},
		markers:  &mockTracker{},
		ledger:   &mockLedger{},
	}
	f.orch = New(f.orders, f.products, f.markers, f.ledger, nil)
	return f
}

func testEvent() *order.Event {
	return &order.Event{
		SessionID:      "cs_1",
		Email:          "buyer@example.com",
		Amount:         decimal.RequireFromString("29.50"),
		AmountShipping: decimal.RequireFromString("4.50"),
		PaymentID:      "pm_1",
		LineItems: []order.LineItem{
			{ItemID: "p1", Quantity: 2},
			{ItemID: "p2", Quantity: 1},
		},
	}
}

// --- Tests ---

func TestFulfill_Complete(t *testing.T) {
	f := newFixture()

	report, err := f.orch.Fulfill(context.Background(), testEvent())
	require.NoError(t, err)

	assert.True(t, report.OrderWritten)
	assert.False(t, report.AlreadyProcessed)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, []AppliedItem{
		{ItemID: "p1", Quantity: 2},
		{ItemID: "p2", Quantity: 1},
	}, report.Applied)

	require.Len(t, f.orders.upserted, 1)
	assert.Equal(t, "cs_1", f.orders.upserted[0].SessionID)

	assert.Equal(t, []decrementCall{{id: "p1", qty: 2}, {id: "p2", qty: 1}}, f.products.decrements)

	// One orders marker for the customer, one products marker per decrement.
	assert.Equal(t, []touchCall{
		{typ: freshness.TypeOrders, email: "buyer@example.com"},
		{typ: freshness.TypeProducts, email: ""},
		{typ: freshness.TypeProducts, email: ""},
	}, f.markers.touches)
}

func TestFulfill_NoPaymentReference(t *testing.T) {
	f := newFixture()
	ev := testEvent()
	ev.PaymentID = ""

	report, err := f.orch.Fulfill(context.Background(), ev)
	require.NoError(t, err)

	assert.True(t, report.SkippedNoPayment)
	assert.False(t, report.OrderWritten)
	assert.Empty(t, f.orders.upserted)
	assert.Empty(t, f.products.decrements)
	assert.Empty(t, f.markers.touches)
}

func TestFulfill_MissingEmail(t *testing.T) {
	f := newFixture()
	ev := testEvent()
	ev.Email = ""

	_, err := f.orch.Fulfill(context.Background(), ev)
	require.Error(t, err)
	assert.Empty(t, f.orders.upserted)
}

func TestFulfill_Redelivery(t *testing.T) {
	f := newFixture()

	first, err := f.orch.Fulfill(context.Background(), testEvent())
	require.NoError(t, err)
	require.False(t, first.AlreadyProcessed)

	second, err := f.orch.Fulfill(context.Background(), testEvent())
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.True(t, second.OrderWritten)
	assert.Empty(t, second.Applied)

	// The order upsert ran twice (idempotent), the decrements only once.
	assert.Len(t, f.orders.upserted, 2)
	assert.Len(t, f.products.decrements, 2)
}

func TestFulfill_ProductNotFound(t *testing.T) {
	f := newFixture()
	f.products.missing = map[string]bool{"p1": true}

	report, err := f.orch.Fulfill(context.Background(), testEvent())
	require.NoError(t, err)

	assert.Equal(t, []SkippedItem{
		{ItemID: "p1", Quantity: 2, Reason: SkipProductNotFound},
	}, report.Skipped)
	assert.Equal(t, []AppliedItem{{ItemID: "p2", Quantity: 1}}, report.Applied)
}

func TestFulfill_InvalidQuantity(t *testing.T) {
	f := newFixture()
	ev := testEvent()
	ev.LineItems = []order.LineItem{
		{ItemID: "p1", Quantity: 0},
		{ItemID: "", Quantity: 3},
		{ItemID: "p2", Quantity: 1},
	}

	report, err := f.orch.Fulfill(context.Background(), ev)
	require.NoError(t, err)

	assert.Len(t, report.Skipped, 2)
	for _, s := range report.Skipped {
		assert.Equal(t, SkipInvalidQuantity, s.Reason)
	}
	assert.Equal(t, []AppliedItem{{ItemID: "p2", Quantity: 1}}, report.Applied)
}

func TestFulfill_DecrementFailure(t *testing.T) {
	f := newFixture()
	f.products.failing = map[string]error{"p1": errors.New("connection reset")}

	report, err := f.orch.Fulfill(context.Background(), testEvent())
	require.NoError(t, err)

	assert.Equal(t, []SkippedItem{
		{ItemID: "p1", Quantity: 2, Reason: SkipDecrementFailed},
	}, report.Skipped)
	assert.Equal(t, []AppliedItem{{ItemID: "p2", Quantity: 1}}, report.Applied)
}

func TestFulfill_OrderWriteError(t *testing.T) {
	f := newFixture()
	f.orders.err = errors.New("db down")

	_, err := f.orch.Fulfill(context.Background(), testEvent())
	require.Error(t, err)
	assert.Empty(t, f.products.decrements)
	assert.Empty(t, f.markers.touches)
}

func TestFulfill_LedgerError(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("db down")

	_, err := f.orch.Fulfill(context.Background(), testEvent())
	require.Error(t, err)

	// The order write landed before the ledger failed; the provider's
	// redelivery will retry the ledger claim.
	assert.Len(t, f.orders.upserted, 1)
	assert.Empty(t, f.products.decrements)
}

func TestFulfill_OrdersMarkerError(t *testing.T) {
	f := newFixture()
	f.markers.err = errors.New("db down")

	_, err := f.orch.Fulfill(context.Background(), testEvent())
	require.Error(t, err)
	assert.Empty(t, f.products.decrements)
}
