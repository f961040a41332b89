package types

import (
	"github.com/shopspring/decimal"
)

// Money is the API representation of a minor-unit amount.
type Money struct {
	Cents    int64  `json:"cents"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney renders cents with two fraction digits.
func NewMoney(cents int64, currency string) Money {
	return Money{
		Cents:    cents,
		Amount:   decimal.NewFromInt(cents).Shift(-2).StringFixed(2),
		Currency: currency,
	}
}
