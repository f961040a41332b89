package payloads

import (
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when an accepted offer becomes an order with funds on hold.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID      `json:"order_id"`
	JobID            uuid.UUID      `json:"job_id"`
	OfferID          uuid.UUID      `json:"offer_id"`
	BuyerID          uuid.UUID      `json:"buyer_id"`
	VendorID         uuid.UUID      `json:"vendor_id"`
	TotalAmountCents int64          `json:"total_amount_cents"`
	Currency         enums.Currency `json:"currency"`
	Provider         string         `json:"provider"`
	CreatedAt        time.Time      `json:"created_at"`
}

// OrderPaidEvent reports that the processor confirmed the hold.
type OrderPaidEvent struct {
	OrderID     uuid.UUID      `json:"order_id"`
	BuyerID     uuid.UUID      `json:"buyer_id"`
	VendorID    uuid.UUID      `json:"vendor_id"`
	AmountCents int64          `json:"amount_cents"`
	Currency    enums.Currency `json:"currency"`
	PaidAt      time.Time      `json:"paid_at"`
}

// DeliveryReportedEvent is emitted when the vendor reports the handover.
type DeliveryReportedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	ReportedAt    time.Time `json:"reported_at"`
	AutoReleaseAt time.Time `json:"auto_release_at"`
}

// DeliveryConfirmedEvent is emitted when a delivery is confirmed explicitly or
// as part of a release or dispute resolution.
type DeliveryConfirmedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	Source      string    `json:"source"`
}

// DisputeOpenedEvent carries the buyer's dispute.
type DisputeOpenedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	BuyerID  uuid.UUID `json:"buyer_id"`
	VendorID uuid.UUID `json:"vendor_id"`
	Reason   string    `json:"reason"`
	OpenedAt time.Time `json:"opened_at"`
}

// DisputeResolvedEvent reports the administrative outcome of a dispute.
type DisputeResolvedEvent struct {
	OrderID           uuid.UUID            `json:"order_id"`
	BuyerID           uuid.UUID            `json:"buyer_id"`
	VendorID          uuid.UUID            `json:"vendor_id"`
	Outcome           enums.DisputeOutcome `json:"outcome"`
	RefundAmountCents int64                `json:"refund_amount_cents"`
	ResolvedAt        time.Time            `json:"resolved_at"`
}

// PayoutSettledEvent is shared by the released, refunded and partially
// refunded payout events.
type PayoutSettledEvent struct {
	OrderID       uuid.UUID          `json:"order_id"`
	BuyerID       uuid.UUID          `json:"buyer_id"`
	VendorID      uuid.UUID          `json:"vendor_id"`
	Intent        enums.PayoutIntent `json:"intent"`
	PayoutStatus  enums.PayoutStatus `json:"payout_status"`
	ReleasedCents int64              `json:"released_cents"`
	RefundedCents int64              `json:"refunded_cents"`
	Currency      enums.Currency     `json:"currency"`
	Provider      string             `json:"provider"`
	Reference     string             `json:"reference"`
	SettledAt     time.Time          `json:"settled_at"`
}

// ReviewSubmittedEvent is emitted once per (order, role) review.
type ReviewSubmittedEvent struct {
	ReviewID   uuid.UUID        `json:"review_id"`
	OrderID    uuid.UUID        `json:"order_id"`
	Role       enums.ReviewRole `json:"role"`
	AuthorID   uuid.UUID        `json:"author_id"`
	RevieweeID uuid.UUID        `json:"reviewee_id"`
	Stars      int              `json:"stars"`
	CreatedAt  time.Time        `json:"created_at"`
}
