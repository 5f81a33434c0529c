package checkout

import "github.com/shopspring/decimal"

// Tier is one quantity bracket of a country's shipping rate table.
type Tier struct {
	MaxQuantity int
	Cost        decimal.Decimal
}

// RateTable maps ISO country codes to ordered tiers. The empty key holds the
// fallback table for countries without an explicit entry.
type RateTable map[string][]Tier

// ShippingCalculator resolves the shipping cost for a cart from tiered,
// per-country rates.
type ShippingCalculator struct {
	rates RateTable
}

// NewShippingCalculator creates a calculator over the given table. Tiers
// must be ordered by ascending MaxQuantity.
func NewShippingCalculator(rates RateTable) *ShippingCalculator {
	return &ShippingCalculator{rates: rates}
}

// DefaultRates returns the built-in rate table used when none is configured.
func DefaultRates() RateTable {
	d := decimal.RequireFromString
	return RateTable{
		"GB": {
			{MaxQuantity: 1, Cost: d("3.50")},
			{MaxQuantity: 3, Cost: d("4.50")},
			{MaxQuantity: 6, Cost: d("5.95")},
			{MaxQuantity: 10, Cost: d("7.50")},
		},
		"US": {
			{MaxQuantity: 1, Cost: d("9.95")},
			{MaxQuantity: 3, Cost: d("13.95")},
			{MaxQuantity: 6, Cost: d("17.95")},
			{MaxQuantity: 10, Cost: d("22.95")},
		},
		"": {
			{MaxQuantity: 1, Cost: d("12.95")},
			{MaxQuantity: 3, Cost: d("16.95")},
			{MaxQuantity: 6, Cost: d("21.95")},
			{MaxQuantity: 10, Cost: d("26.95")},
		},
	}
}

// Cost returns the shipping cost for the total item quantity shipped to
// country, rounded to 2 decimal places. Quantities above the last tier pay
// the last tier's cost; an unknown country uses the fallback table.
func (c *ShippingCalculator) Cost(quantity int, country string) decimal.Decimal {
	tiers, ok := c.rates[country]
	if !ok || len(tiers) == 0 {
		tiers = c.rates[""]
	}
	if len(tiers) == 0 {
		return decimal.Zero
	}
	for _, t := range tiers {
		if quantity <= t.MaxQuantity {
			return t.Cost.Round(2)
		}
	}
	return tiers[len(tiers)-1].Cost.Round(2)
}
