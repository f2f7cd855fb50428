package utils

import "github.com/shopspring/decimal"

const (
	CurrencyPrecision = 2
	QtyPrecision      = 4
)

var hundred = decimal.NewFromInt(100)
var sixty = decimal.NewFromInt(60)

// RoundCurrency rounds half-to-even at two decimals.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CurrencyPrecision)
}

// RoundQty rounds quantities to the precision of the decimal(20,4) columns.
func RoundQty(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QtyPrecision)
}

// ApplyScrap inflates qty by scrap percent: qty * (1 + pct/100).
func ApplyScrap(qty decimal.Decimal, scrapPercentage decimal.Decimal) decimal.Decimal {
	if scrapPercentage.IsZero() {
		return qty
	}
	return qty.Mul(decimal.NewFromInt(1).Add(scrapPercentage.Div(hundred)))
}

// HourlyCost is minutes/60 * hourRate, rounded as currency.
func HourlyCost(minutes decimal.Decimal, hourRate decimal.Decimal) decimal.Decimal {
	return RoundCurrency(minutes.Div(sixty).Mul(hourRate))
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// RoundRate rounds unit rates to the precision the ledger columns store.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QtyPrecision)
}
