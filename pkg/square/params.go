package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams describes a card payment. Autocomplete false keeps the
// payment APPROVED until CompletePayment or CancelPayment.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	Autocomplete   bool
}

func (p PaymentCreateParams) request(key string) *sq.CreatePaymentRequest {
	autocomplete := p.Autocomplete
	return &sq.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       p.SourceID,
		AmountMoney:    money(p.AmountCents, p.Currency),
		Autocomplete:   &autocomplete,
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

// RefundCreateParams refunds part or all of a completed payment.
type RefundCreateParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundCreateParams) request(key string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: key,
		AmountMoney:    money(p.AmountCents, p.Currency),
		PaymentID:      optional(p.PaymentID),
		Reason:         optional(p.Reason),
	}
}

// optional trims s and returns nil for blanks so Square omits the field.
func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// money builds a Square amount; currency defaults to EUR.
func money(cents int64, currency string) *sq.Money {
	if cents == 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "EUR"
	}
	cur := sq.Currency(code)
	return &sq.Money{Amount: &cents, Currency: &cur}
}

// MoneyAmount returns the minor units of m, or 0 when unset.
func MoneyAmount(m *sq.Money) int64 {
	if m == nil || m.Amount == nil {
		return 0
	}
	return *m.Amount
}

// MoneyCurrency returns the ISO code of m, or "" when unset.
func MoneyCurrency(m *sq.Money) string {
	if m == nil || m.Currency == nil {
		return ""
	}
	return string(*m.Currency)
}
