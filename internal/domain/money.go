package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount in a single currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// NewMoney parses a decimal string amount.
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, CurrencyCode: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

// MoneyFromCents converts minor units with two fraction digits.
func MoneyFromCents(cents int64, currency string) Money {
	return Money{Amount: decimal.New(cents, -2), CurrencyCode: currency}
}

// Cents returns the amount in minor units, rounding half away from zero.
func (m Money) Cents() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

// Mul multiplies the amount by a quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), CurrencyCode: m.CurrencyCode}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.CurrencyCode
}
