package checkout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestShippingCost(t *testing.T) {
	calc := NewShippingCalculator(DefaultRates())

	tests := []struct {
		name     string
		quantity int
		country  string
		want     string
	}{
		{name: "gb single item", quantity: 1, country: "GB", want: "3.50"},
		{name: "gb tier boundary", quantity: 3, country: "GB", want: "4.50"},
		{name: "gb above boundary", quantity: 4, country: "GB", want: "5.95"},
		{name: "gb beyond last tier", quantity: 25, country: "GB", want: "7.50"},
		{name: "us single item", quantity: 1, country: "US", want: "9.95"},
		{name: "unknown country falls back", quantity: 2, country: "JP", want: "16.95"},
		{name: "empty country falls back", quantity: 1, country: "", want: "12.95"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Cost(tt.quantity, tt.country)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"want %s, got %s", tt.want, got)
		})
	}
}

func TestShippingCost_EmptyTable(t *testing.T) {
	calc := NewShippingCalculator(RateTable{})
	assert.True(t, calc.Cost(5, "GB").IsZero())
}
