package enums

// DisputeOutcome is the administrative resolution applied to a disputed order.
type DisputeOutcome string

const (
	DisputeOutcomeRelease       DisputeOutcome = "release"
	DisputeOutcomeRefund        DisputeOutcome = "refund"
	DisputeOutcomePartialRefund DisputeOutcome = "partial_refund"
)

var disputeOutcomes = values[DisputeOutcome]{
	DisputeOutcomeRelease,
	DisputeOutcomeRefund,
	DisputeOutcomePartialRefund,
}

func (d DisputeOutcome) String() string { return string(d) }

func (d DisputeOutcome) IsValid() bool { return disputeOutcomes.has(d) }

func ParseDisputeOutcome(value string) (DisputeOutcome, error) {
	return disputeOutcomes.parse("dispute outcome", value)
}

// Intent is the payout movement that carries out the outcome.
func (d DisputeOutcome) Intent() PayoutIntent {
	switch d {
	case DisputeOutcomeRelease:
		return PayoutIntentRelease
	case DisputeOutcomeRefund:
		return PayoutIntentRefund
	case DisputeOutcomePartialRefund:
		return PayoutIntentPartialRefund
	}
	return ""
}
