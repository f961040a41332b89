package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/google/uuid"
)

func alreadyResolved(message string) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyResolved, message)
}

// payoutOpen fails with AlreadyResolved unless the payout is still on hold and
// no other movement is in flight. A stale intent matching resume may be taken over.
func payoutOpen(order *models.Order, resume enums.PayoutIntent, now time.Time, staleAfter time.Duration) error {
	if order.PayoutStatus != enums.PayoutStatusHold {
		return alreadyResolved(fmt.Sprintf("payout already %s", order.PayoutStatus))
	}
	if order.PayoutIntent == nil {
		return nil
	}
	if resume != "" && *order.PayoutIntent == resume && intentStale(order, now, staleAfter) {
		return nil
	}
	return alreadyResolved(fmt.Sprintf("payout %s already in progress", *order.PayoutIntent))
}

func intentStale(order *models.Order, now time.Time, staleAfter time.Duration) bool {
	if order.PayoutIntent == nil || order.PayoutIntentAt == nil {
		return false
	}
	return !now.Before(order.PayoutIntentAt.Add(staleAfter))
}

func requireNoDispute(order *models.Order) error {
	if DisputeOpen(order) {
		return forbidden("dispute open; awaiting resolution")
	}
	return nil
}

// checkRelease validates a self-service release and returns the acting party.
// The window is checked before the payout state so a late caller learns about
// the closed window rather than the outcome.
func (p WindowPolicy) checkRelease(order *models.Order, actorID uuid.UUID, now time.Time, staleAfter time.Duration) (party, error) {
	who := partyOf(order, actorID)
	if who == partyNone {
		return who, forbidden("not a party to this order")
	}
	if order.PaidAt == nil {
		return who, forbidden("order is not paid yet")
	}
	autoRelease := p.AutoReleaseAt(order)
	switch who {
	case partyBuyer:
		if !now.Before(autoRelease) {
			return who, forbidden(fmt.Sprintf("buyer decision window closed on %s", formatDeadline(autoRelease)))
		}
	case partyVendor:
		if now.Before(autoRelease) {
			return who, forbidden(fmt.Sprintf("release possible only after %s", formatDeadline(autoRelease)))
		}
	}
	if err := payoutOpen(order, enums.PayoutIntentRelease, now, staleAfter); err != nil {
		return who, err
	}
	if err := requireNoDispute(order); err != nil {
		return who, err
	}
	if who == partyVendor && order.FulfillmentStatus == enums.FulfillmentStatusInProgress {
		return who, forbidden("delivery has not been reported")
	}
	return who, nil
}

func (p WindowPolicy) checkRefund(order *models.Order, actorID uuid.UUID, now time.Time, staleAfter time.Duration) error {
	if partyOf(order, actorID) != partyBuyer {
		return forbidden("only the buyer can request a refund")
	}
	if order.PaidAt == nil {
		return forbidden("order is not paid yet")
	}
	if autoRelease := p.AutoReleaseAt(order); !now.Before(autoRelease) {
		return forbidden(fmt.Sprintf("refund possible only until %s", formatDeadline(autoRelease)))
	}
	if err := payoutOpen(order, enums.PayoutIntentRefund, now, staleAfter); err != nil {
		return err
	}
	return requireNoDispute(order)
}

func checkResolveDispute(order *models.Order, outcome enums.DisputeOutcome, refundCents int64, now time.Time, staleAfter time.Duration) error {
	if !outcome.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "outcome must be release, refund or partial_refund")
	}
	if outcome == enums.DisputeOutcomePartialRefund && (refundCents <= 0 || refundCents >= order.TotalAmountCents) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be between zero and the order total")
	}
	if !DisputeOpen(order) {
		return invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusConfirmed)
	}
	return payoutOpen(order, outcome.Intent(), now, staleAfter)
}

func checkEscalateRefund(order *models.Order, now time.Time, staleAfter time.Duration) error {
	if order.PayoutStatus != enums.PayoutStatusPartialRefund {
		if order.PayoutStatus == enums.PayoutStatusRefunded {
			return alreadyResolved("payout already refunded")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot escalate a payout in state %s", order.PayoutStatus))
	}
	if order.PayoutIntent != nil && !(*order.PayoutIntent == enums.PayoutIntentEscalateRefund && intentStale(order, now, staleAfter)) {
		return alreadyResolved(fmt.Sprintf("payout %s already in progress", *order.PayoutIntent))
	}
	return nil
}
