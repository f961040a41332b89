package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/google/uuid"
)

var fulfillmentEdges = map[enums.FulfillmentStatus][]enums.FulfillmentStatus{
	enums.FulfillmentStatusInProgress: {enums.FulfillmentStatusReported, enums.FulfillmentStatusDisputed},
	enums.FulfillmentStatusReported:   {enums.FulfillmentStatusConfirmed, enums.FulfillmentStatusDisputed},
	enums.FulfillmentStatusDisputed:   {enums.FulfillmentStatusConfirmed},
}

// CanTransition reports whether from -> to is an edge of the fulfillment graph.
func CanTransition(from, to enums.FulfillmentStatus) bool {
	for _, next := range fulfillmentEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

type party int

const (
	partyNone party = iota
	partyBuyer
	partyVendor
)

func partyOf(order *models.Order, userID uuid.UUID) party {
	switch userID {
	case order.BuyerID:
		return partyBuyer
	case order.VendorID:
		return partyVendor
	default:
		return partyNone
	}
}

func (p party) String() string {
	switch p {
	case partyBuyer:
		return "buyer"
	case partyVendor:
		return "vendor"
	default:
		return "none"
	}
}

func invalidTransition(from, to enums.FulfillmentStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("fulfillment cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func forbidden(message string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, message)
}

func checkReportDelivery(order *models.Order, actorID uuid.UUID, now time.Time) error {
	if partyOf(order, actorID) != partyVendor {
		return forbidden("only the vendor can report delivery")
	}
	if !CanTransition(order.FulfillmentStatus, enums.FulfillmentStatusReported) {
		return invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusReported)
	}
	if order.PaidAt == nil {
		return forbidden("order is not paid yet")
	}
	if now.Before(startOfDay(order.ExpectedGoodsBackDate)) {
		return forbidden(fmt.Sprintf("delivery can be reported from %s", formatDate(order.ExpectedGoodsBackDate)))
	}
	return nil
}

func (p WindowPolicy) checkConfirmDelivery(order *models.Order, actorID uuid.UUID, now time.Time) error {
	if partyOf(order, actorID) != partyBuyer {
		return forbidden("only the buyer can confirm delivery")
	}
	effective := p.EffectiveFulfillment(order, now)
	if !CanTransition(effective, enums.FulfillmentStatusConfirmed) || effective == enums.FulfillmentStatusDisputed {
		return invalidTransition(effective, enums.FulfillmentStatusConfirmed)
	}
	return nil
}

func (p WindowPolicy) checkOpenDispute(order *models.Order, actorID uuid.UUID, now time.Time, staleAfter time.Duration) error {
	if partyOf(order, actorID) != partyBuyer {
		return forbidden("only the buyer can open a dispute")
	}
	if err := payoutOpen(order, "", now, staleAfter); err != nil {
		return err
	}
	if order.PaidAt == nil {
		return forbidden("order is not paid yet")
	}
	if !CanTransition(order.FulfillmentStatus, enums.FulfillmentStatusDisputed) {
		return invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusDisputed)
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusReported {
		if autoRelease := p.AutoReleaseAt(order); !now.Before(autoRelease) {
			return forbidden(fmt.Sprintf("dispute window closed on %s", formatDeadline(autoRelease)))
		}
	}
	return nil
}

func formatDeadline(t time.Time) string {
	t = t.UTC()
	if t.Equal(startOfDay(t)) {
		return formatDate(t)
	}
	return t.Format("2006-01-02 15:04 UTC")
}
