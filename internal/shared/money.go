package shared

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits persisted for amounts.
const MoneyScale int32 = 4

// RoundMoney rounds d to MoneyScale fractional digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseMoney parses a decimal string and rejects values carrying more than
// MoneyScale fractional digits.
func ParseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", raw, err)
	}
	if !d.Equal(d.Round(MoneyScale)) {
		return decimal.Zero, fmt.Errorf("money: %q exceeds %d fractional digits", raw, MoneyScale)
	}
	return d, nil
}

// NumericString renders d for a NUMERIC(20,4) column.
func NumericString(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
