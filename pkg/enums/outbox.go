package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateReview      OutboxAggregateType = "review"
	AggregateLedgerEvent OutboxAggregateType = "ledger_event"
)

var aggregateTypes = values[OutboxAggregateType]{
	AggregateOrder,
	AggregateReview,
	AggregateLedgerEvent,
}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated            OutboxEventType = "order_created"
	EventOrderPaid               OutboxEventType = "order_paid"
	EventDeliveryReported        OutboxEventType = "delivery_reported"
	EventDeliveryConfirmed       OutboxEventType = "delivery_confirmed"
	EventDisputeOpened           OutboxEventType = "dispute_opened"
	EventDisputeResolved         OutboxEventType = "dispute_resolved"
	EventPayoutReleased          OutboxEventType = "payout_released"
	EventPayoutRefunded          OutboxEventType = "payout_refunded"
	EventPayoutPartiallyRefunded OutboxEventType = "payout_partially_refunded"
	EventReviewSubmitted         OutboxEventType = "review_submitted"
)

var outboxEventTypes = values[OutboxEventType]{
	EventOrderCreated,
	EventOrderPaid,
	EventDeliveryReported,
	EventDeliveryConfirmed,
	EventDisputeOpened,
	EventDisputeResolved,
	EventPayoutReleased,
	EventPayoutRefunded,
	EventPayoutPartiallyRefunded,
	EventReviewSubmitted,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
