package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an exact amount in a specific ISO currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// MoneyFromMinor converts an integer amount in minor units (cents) into Money
// using the currency's standard scale.
func MoneyFromMinor(minor int64, code string) (Money, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return Money{}, fmt.Errorf("currency[%s] is not valid: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Money{
		Amount:   decimal.New(minor, -int32(scale)),
		Currency: unit,
	}, nil
}

// Decimal renders the amount with exactly the currency's number of fraction digits.
func (m Money) Decimal() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.StringFixed(int32(scale))
}

func (m Money) String() string {
	return m.Decimal() + " " + m.Currency.String()
}

// FormatMinor is a shorthand for MoneyFromMinor(...).String().
func FormatMinor(minor int64, code string) (string, error) {
	m, err := MoneyFromMinor(minor, code)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}
