package enums

// AnalyticsEventType is the canonical event_type for analytics routing.
type AnalyticsEventType string

const (
	AnalyticsEventOrderCreated      AnalyticsEventType = "order_created"
	AnalyticsEventOrderPaid         AnalyticsEventType = "order_paid"
	AnalyticsEventDeliveryReported  AnalyticsEventType = "delivery_reported"
	AnalyticsEventDeliveryConfirmed AnalyticsEventType = "delivery_confirmed"
	AnalyticsEventDisputeOpened     AnalyticsEventType = "dispute_opened"
	AnalyticsEventDisputeResolved   AnalyticsEventType = "dispute_resolved"
	AnalyticsEventPayoutReleased    AnalyticsEventType = "payout_released"
	AnalyticsEventPayoutRefunded    AnalyticsEventType = "payout_refunded"
	AnalyticsEventPayoutPartial     AnalyticsEventType = "payout_partially_refunded"
)

var analyticsEventTypes = values[AnalyticsEventType]{
	AnalyticsEventOrderCreated,
	AnalyticsEventOrderPaid,
	AnalyticsEventDeliveryReported,
	AnalyticsEventDeliveryConfirmed,
	AnalyticsEventDisputeOpened,
	AnalyticsEventDisputeResolved,
	AnalyticsEventPayoutReleased,
	AnalyticsEventPayoutRefunded,
	AnalyticsEventPayoutPartial,
}

func (a AnalyticsEventType) IsValid() bool { return analyticsEventTypes.has(a) }

func ParseAnalyticsEventType(value string) (AnalyticsEventType, error) {
	return analyticsEventTypes.parse("analytics event type", value)
}
