package workflow

import "github.com/shopspring/decimal"

// Quantities carry 3 decimal places, money 4. Rounding is half-away-from-zero
// and is applied after every arithmetic step, not only on the final value, so
// running totals match the upstream platform's fixed-point behavior digit for
// digit.

const (
	qtyScale   = 3
	priceScale = 4
)

func RoundQty(d decimal.Decimal) decimal.Decimal {
	return d.Round(qtyScale)
}

func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(priceScale)
}
