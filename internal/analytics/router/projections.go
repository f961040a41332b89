package router

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
)

// Nullable columns stay NULL rather than holding zero values.
func optString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func optCents(v int64) *int64 { return &v }

func optID(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return optString(id.String())
}

func parties(row *types.EscrowEventRow, orderID, buyerID, vendorID uuid.UUID) {
	if orderID != uuid.Nil {
		row.OrderID = orderID.String()
	}
	row.BuyerID = optID(buyerID)
	row.VendorID = optID(vendorID)
}

func fulfillment(row *types.EscrowEventRow, status enums.FulfillmentStatus) {
	row.FulfillmentStatus = optString(string(status))
}

func projectOrderCreated(row *types.EscrowEventRow, e *payloads.OrderCreatedEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	row.AmountCents = optCents(e.TotalAmountCents)
	row.Currency = optString(string(e.Currency))
	row.Provider = optString(e.Provider)
	row.PayoutStatus = optString(string(enums.PayoutStatusHold))
	fulfillment(row, enums.FulfillmentStatusInProgress)
}

// projectOrderPaid dates the row by the provider's payment time when known.
func projectOrderPaid(row *types.EscrowEventRow, e *payloads.OrderPaidEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	row.AmountCents = optCents(e.AmountCents)
	row.Currency = optString(string(e.Currency))
	if !e.PaidAt.IsZero() {
		row.OccurredAt = e.PaidAt.UTC()
	}
}

func projectDeliveryReported(row *types.EscrowEventRow, e *payloads.DeliveryReportedEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	fulfillment(row, enums.FulfillmentStatusReported)
}

func projectDeliveryConfirmed(row *types.EscrowEventRow, e *payloads.DeliveryConfirmedEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	fulfillment(row, enums.FulfillmentStatusConfirmed)
}

func projectDisputeOpened(row *types.EscrowEventRow, e *payloads.DisputeOpenedEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	fulfillment(row, enums.FulfillmentStatusDisputed)
}

func projectDisputeResolved(row *types.EscrowEventRow, e *payloads.DisputeResolvedEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	row.DisputeOutcome = optString(string(e.Outcome))
	if e.RefundAmountCents > 0 {
		row.RefundedCents = optCents(e.RefundAmountCents)
	}
}

// projectPayoutSettled serves release, refund and partial refund alike; the
// payload's split says which.
func projectPayoutSettled(row *types.EscrowEventRow, e *payloads.PayoutSettledEvent) {
	parties(row, e.OrderID, e.BuyerID, e.VendorID)
	row.ReleasedCents = optCents(e.ReleasedCents)
	row.RefundedCents = optCents(e.RefundedCents)
	row.Currency = optString(string(e.Currency))
	row.Provider = optString(e.Provider)
	row.PayoutStatus = optString(string(e.PayoutStatus))
}
