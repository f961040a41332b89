package enums

// PayoutIntent marks a reserved ledger movement that has not been finalized yet.
type PayoutIntent string

const (
	PayoutIntentRelease        PayoutIntent = "release"
	PayoutIntentRefund         PayoutIntent = "refund"
	PayoutIntentPartialRefund  PayoutIntent = "partial_refund"
	PayoutIntentEscalateRefund PayoutIntent = "escalate_refund"
)

var payoutIntents = values[PayoutIntent]{
	PayoutIntentRelease,
	PayoutIntentRefund,
	PayoutIntentPartialRefund,
	PayoutIntentEscalateRefund,
}

func (i PayoutIntent) String() string { return string(i) }

func (i PayoutIntent) IsValid() bool { return payoutIntents.has(i) }

func ParsePayoutIntent(value string) (PayoutIntent, error) {
	return payoutIntents.parse("payout intent", value)
}

// TargetStatus is the payout status reached when the intent is finalized.
func (i PayoutIntent) TargetStatus() PayoutStatus {
	switch i {
	case PayoutIntentRelease:
		return PayoutStatusReleased
	case PayoutIntentPartialRefund:
		return PayoutStatusPartialRefund
	case PayoutIntentRefund, PayoutIntentEscalateRefund:
		return PayoutStatusRefunded
	}
	return ""
}
