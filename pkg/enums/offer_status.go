package enums

// OfferStatus tracks a vendor bid on a job.
type OfferStatus string

const (
	OfferStatusOpen      OfferStatus = "open"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

var offerStatuses = values[OfferStatus]{
	OfferStatusOpen,
	OfferStatusAccepted,
	OfferStatusWithdrawn,
}

func (o OfferStatus) String() string { return string(o) }

func (o OfferStatus) IsValid() bool { return offerStatuses.has(o) }

func ParseOfferStatus(value string) (OfferStatus, error) {
	return offerStatuses.parse("offer status", value)
}
