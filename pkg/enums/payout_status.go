package enums

// PayoutStatus tracks held funds relative to the vendor.
type PayoutStatus string

const (
	PayoutStatusHold          PayoutStatus = "hold"
	PayoutStatusReleased      PayoutStatus = "released"
	PayoutStatusPartialRefund PayoutStatus = "partial_refund"
	PayoutStatusRefunded      PayoutStatus = "refunded"
)

var payoutStatuses = values[PayoutStatus]{
	PayoutStatusHold,
	PayoutStatusReleased,
	PayoutStatusPartialRefund,
	PayoutStatusRefunded,
}

func (p PayoutStatus) String() string { return string(p) }

func (p PayoutStatus) IsValid() bool { return payoutStatuses.has(p) }

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return payoutStatuses.parse("payout status", value)
}

// IsTerminal reports whether the funds have left hold.
func (p PayoutStatus) IsTerminal() bool {
	return p == PayoutStatusReleased || p == PayoutStatusPartialRefund || p == PayoutStatusRefunded
}
