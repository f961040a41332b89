package enums

import "strings"

// Currency is an ISO 4217 code accepted for escrowed orders.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyCHF Currency = "CHF"
	CurrencyUSD Currency = "USD"
)

var currencies = values[Currency]{CurrencyEUR, CurrencyCHF, CurrencyUSD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

// ParseCurrency accepts codes in any case and with surrounding blanks.
func ParseCurrency(value string) (Currency, error) {
	c, err := currencies.parse("currency", strings.ToUpper(strings.TrimSpace(value)))
	if err != nil {
		return "", err
	}
	return c, nil
}
