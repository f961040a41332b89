package enums

// LedgerEventType maps to the ledger_event_type enum in Postgres.
type LedgerEventType string

const (
	LedgerEventTypeHold           LedgerEventType = "hold"
	LedgerEventTypePaymentSettled LedgerEventType = "payment_settled"
	LedgerEventTypeRelease        LedgerEventType = "release"
	LedgerEventTypePartialRefund  LedgerEventType = "partial_refund"
	LedgerEventTypeRefund         LedgerEventType = "refund"
)

var ledgerEventTypes = values[LedgerEventType]{
	LedgerEventTypeHold,
	LedgerEventTypePaymentSettled,
	LedgerEventTypeRelease,
	LedgerEventTypePartialRefund,
	LedgerEventTypeRefund,
}

func (t LedgerEventType) IsValid() bool { return ledgerEventTypes.has(t) }

func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return ledgerEventTypes.parse("ledger event type", value)
}
