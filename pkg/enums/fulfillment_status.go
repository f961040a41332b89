package enums

// FulfillmentStatus tracks delivery progress of an order, independent of money movement.
type FulfillmentStatus string

const (
	FulfillmentStatusInProgress FulfillmentStatus = "in_progress"
	FulfillmentStatusReported   FulfillmentStatus = "reported"
	FulfillmentStatusDisputed   FulfillmentStatus = "disputed"
	FulfillmentStatusConfirmed  FulfillmentStatus = "confirmed"
)

var fulfillmentStatuses = values[FulfillmentStatus]{
	FulfillmentStatusInProgress,
	FulfillmentStatusReported,
	FulfillmentStatusDisputed,
	FulfillmentStatusConfirmed,
}

func (f FulfillmentStatus) String() string { return string(f) }

func (f FulfillmentStatus) IsValid() bool { return fulfillmentStatuses.has(f) }

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	return fulfillmentStatuses.parse("fulfillment status", value)
}
