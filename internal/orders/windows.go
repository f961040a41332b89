package orders

import (
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
)

const dateLayout = "2006-01-02"

// Windows are the action windows of an order at a given instant. They are
// derived from stored timestamps on every read and never persisted.
type Windows struct {
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ReportableFrom    time.Time  `json:"reportable_from"`
	AutoReleaseAt     time.Time  `json:"auto_release_at"`
	BuyerDecisionOpen bool       `json:"buyer_decision_open"`
	VendorClaimOpen   bool       `json:"vendor_claim_open"`
}

// WindowPolicy carries the default auto-release offset for orders whose job
// does not override it.
type WindowPolicy struct {
	AutoReleaseDays int
}

func (p WindowPolicy) days(order *models.Order) int {
	if order.AutoReleaseDays != nil && *order.AutoReleaseDays > 0 {
		return *order.AutoReleaseDays
	}
	if p.AutoReleaseDays > 0 {
		return p.AutoReleaseDays
	}
	return 3
}

// AutoReleaseAt is the later of the scheduled handover date and the delivery
// report, plus the auto-release offset.
func (p WindowPolicy) AutoReleaseAt(order *models.Order) time.Time {
	anchor := startOfDay(order.ExpectedGoodsBackDate)
	if order.DeliveryReportedAt != nil && order.DeliveryReportedAt.After(anchor) {
		anchor = order.DeliveryReportedAt.UTC()
	}
	return anchor.AddDate(0, 0, p.days(order))
}

// Evaluate computes the windows of order at now.
func (p WindowPolicy) Evaluate(order *models.Order, now time.Time) Windows {
	autoRelease := p.AutoReleaseAt(order)
	w := Windows{
		PaidAt:         order.PaidAt,
		ReportableFrom: startOfDay(order.ExpectedGoodsBackDate),
		AutoReleaseAt:  autoRelease,
	}
	if order.PaidAt != nil && !now.Before(*order.PaidAt) && now.Before(autoRelease) {
		w.BuyerDecisionOpen = true
	}
	if order.PayoutStatus == enums.PayoutStatusHold && !now.Before(autoRelease) {
		w.VendorClaimOpen = true
	}
	return w
}

// DisputeOpen reports whether a dispute was opened and not yet resolved.
func DisputeOpen(order *models.Order) bool {
	return order.DisputeOpenedAt != nil && order.DisputeResolvedAt == nil
}

// EffectiveFulfillment is the fulfillment status as observed at now. A reported
// delivery counts as confirmed once the buyer released the funds or the
// decision window lapsed without a dispute.
func (p WindowPolicy) EffectiveFulfillment(order *models.Order, now time.Time) enums.FulfillmentStatus {
	if order.FulfillmentStatus != enums.FulfillmentStatusReported || DisputeOpen(order) {
		return order.FulfillmentStatus
	}
	if order.PayoutStatus == enums.PayoutStatusReleased || !now.Before(p.AutoReleaseAt(order)) {
		return enums.FulfillmentStatusConfirmed
	}
	return order.FulfillmentStatus
}

// Settled reports whether the order is logically terminal at now.
func (p WindowPolicy) Settled(order *models.Order, now time.Time) bool {
	return p.EffectiveFulfillment(order, now) == enums.FulfillmentStatusConfirmed && order.PayoutStatus.IsTerminal()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
