package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/types"
	"github.com/google/uuid"
)

// Action is an operation a viewer could perform on an order right now.
type Action string

const (
	ActionReportDelivery  Action = "report_delivery"
	ActionConfirmDelivery Action = "confirm_delivery"
	ActionOpenDispute     Action = "open_dispute"
	ActionRelease         Action = "release"
	ActionRefund          Action = "refund"
	ActionReview          Action = "review"
)

// OrderView is the read model of an order for one viewer. Fulfillment is the
// effective status at the time of the read.
type OrderView struct {
	ID                    uuid.UUID                  `json:"id"`
	JobID                 uuid.UUID                  `json:"job_id"`
	OfferID               uuid.UUID                  `json:"offer_id"`
	BuyerID               uuid.UUID                  `json:"buyer_id"`
	VendorID              uuid.UUID                  `json:"vendor_id"`
	ViewerRole            string                     `json:"viewer_role"`
	GoodsAmount           types.Money                `json:"goods_amount"`
	LogisticsAmount       types.Money                `json:"logistics_amount"`
	TotalAmount           types.Money                `json:"total_amount"`
	ReleasedAmount        *types.Money               `json:"released_amount,omitempty"`
	RefundedAmount        *types.Money               `json:"refunded_amount,omitempty"`
	FulfillmentStatus     enums.FulfillmentStatus    `json:"fulfillment_status"`
	PayoutStatus          enums.PayoutStatus         `json:"payout_status"`
	PayoutPending         bool                       `json:"payout_pending"`
	Settled               bool                       `json:"settled"`
	PaidAt                *time.Time                 `json:"paid_at,omitempty"`
	DeliveryReportedAt    *time.Time                 `json:"delivery_reported_at,omitempty"`
	DeliveryConfirmedAt   *time.Time                 `json:"delivery_confirmed_at,omitempty"`
	DisputeOpenedAt       *time.Time                 `json:"dispute_opened_at,omitempty"`
	DisputeReason         *string                    `json:"dispute_reason,omitempty"`
	DisputeResolvedAt     *time.Time                 `json:"dispute_resolved_at,omitempty"`
	DisputeResolution     *enums.DisputeOutcome      `json:"dispute_resolution,omitempty"`
	PayoutReleasedAt      *time.Time                 `json:"payout_released_at,omitempty"`
	RefundedAt            *time.Time                 `json:"refunded_at,omitempty"`
	BuyerReviewed         bool                       `json:"buyer_reviewed"`
	VendorReviewed        bool                       `json:"vendor_reviewed"`
	ExpectedGoodsOutDate  string                     `json:"expected_goods_out_date"`
	ExpectedGoodsBackDate string                     `json:"expected_goods_back_date"`
	Windows               Windows                    `json:"windows"`
	Buyer                 types.CounterpartySnapshot `json:"buyer_snapshot"`
	Vendor                types.CounterpartySnapshot `json:"vendor_snapshot"`
	AllowedActions        []Action                   `json:"allowed_actions"`
	NeedsAction           bool                       `json:"needs_action"`
	CreatedAt             time.Time                  `json:"created_at"`
}

// View builds the read model of order for viewerID at now.
func (p WindowPolicy) View(order *models.Order, viewerID uuid.UUID, now time.Time, staleAfter time.Duration) OrderView {
	currency := order.Currency.String()
	actions := p.AllowedActions(order, viewerID, now, staleAfter)
	view := OrderView{
		ID:                    order.ID,
		JobID:                 order.JobID,
		OfferID:               order.OfferID,
		BuyerID:               order.BuyerID,
		VendorID:              order.VendorID,
		ViewerRole:            partyOf(order, viewerID).String(),
		GoodsAmount:           types.NewMoney(order.GoodsAmountCents, currency),
		LogisticsAmount:       types.NewMoney(order.LogisticsAmountCents, currency),
		TotalAmount:           types.NewMoney(order.TotalAmountCents, currency),
		FulfillmentStatus:     p.EffectiveFulfillment(order, now),
		PayoutStatus:          order.PayoutStatus,
		PayoutPending:         order.PayoutIntent != nil,
		Settled:               p.Settled(order, now),
		PaidAt:                order.PaidAt,
		DeliveryReportedAt:    order.DeliveryReportedAt,
		DeliveryConfirmedAt:   order.DeliveryConfirmedAt,
		DisputeOpenedAt:       order.DisputeOpenedAt,
		DisputeReason:         order.DisputeReason,
		DisputeResolvedAt:     order.DisputeResolvedAt,
		DisputeResolution:     order.DisputeResolution,
		PayoutReleasedAt:      order.PayoutReleasedAt,
		RefundedAt:            order.RefundedAt,
		BuyerReviewed:         order.BuyerReviewed,
		VendorReviewed:        order.VendorReviewed,
		ExpectedGoodsOutDate:  formatDate(order.ExpectedGoodsOutDate),
		ExpectedGoodsBackDate: formatDate(order.ExpectedGoodsBackDate),
		Windows:               p.Evaluate(order, now),
		Buyer:                 order.BuyerSnapshot,
		Vendor:                order.VendorSnapshot,
		AllowedActions:        actions,
		NeedsAction:           needsAction(partyOf(order, viewerID), actions),
		CreatedAt:             order.CreatedAt,
	}
	if order.ReleasedAmountCents != nil {
		m := types.NewMoney(*order.ReleasedAmountCents, currency)
		view.ReleasedAmount = &m
	}
	if order.RefundedAmountCents != nil {
		m := types.NewMoney(*order.RefundedAmountCents, currency)
		view.RefundedAmount = &m
	}
	return view
}

// AllowedActions lists the operations viewerID may perform at now. Each entry
// runs the same precondition checks as the mutating operation.
func (p WindowPolicy) AllowedActions(order *models.Order, viewerID uuid.UUID, now time.Time, staleAfter time.Duration) []Action {
	who := partyOf(order, viewerID)
	actions := []Action{}
	if who == partyNone {
		return actions
	}
	if checkReportDelivery(order, viewerID, now) == nil {
		actions = append(actions, ActionReportDelivery)
	}
	if p.checkConfirmDelivery(order, viewerID, now) == nil {
		actions = append(actions, ActionConfirmDelivery)
	}
	if p.checkOpenDispute(order, viewerID, now, staleAfter) == nil {
		actions = append(actions, ActionOpenDispute)
	}
	if _, err := p.checkRelease(order, viewerID, now, staleAfter); err == nil {
		actions = append(actions, ActionRelease)
	}
	if p.checkRefund(order, viewerID, now, staleAfter) == nil {
		actions = append(actions, ActionRefund)
	}
	if role, ok := ReviewRoleFor(order, viewerID); ok && p.CheckReview(order, viewerID, role, now) == nil {
		actions = append(actions, ActionReview)
	}
	return actions
}

// NeedsAction reports whether the order waits on viewerID. Disputing and
// refunding are options, not obligations, and do not count.
func (p WindowPolicy) NeedsAction(order *models.Order, viewerID uuid.UUID, now time.Time, staleAfter time.Duration) bool {
	return needsAction(partyOf(order, viewerID), p.AllowedActions(order, viewerID, now, staleAfter))
}

func needsAction(who party, actions []Action) bool {
	for _, action := range actions {
		switch action {
		case ActionReportDelivery, ActionConfirmDelivery, ActionReview:
			return true
		case ActionRelease:
			if who == partyVendor {
				return true
			}
		}
	}
	return false
}

// ReviewRoleFor is the review direction available to viewerID.
func ReviewRoleFor(order *models.Order, viewerID uuid.UUID) (enums.ReviewRole, bool) {
	switch partyOf(order, viewerID) {
	case partyBuyer:
		return enums.ReviewRoleBuyerToVendor, true
	case partyVendor:
		return enums.ReviewRoleVendorToBuyer, true
	default:
		return "", false
	}
}

// CheckReview gates review submission: the author must hold the role, the
// order must be settled and the role not yet reviewed.
func (p WindowPolicy) CheckReview(order *models.Order, authorID uuid.UUID, role enums.ReviewRole, now time.Time) error {
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer_to_vendor or vendor_to_buyer")
	}
	who := partyOf(order, authorID)
	switch role {
	case enums.ReviewRoleBuyerToVendor:
		if who != partyBuyer {
			return forbidden("only the buyer can review the vendor")
		}
	case enums.ReviewRoleVendorToBuyer:
		if who != partyVendor {
			return forbidden("only the vendor can review the buyer")
		}
	}
	if effective := p.EffectiveFulfillment(order, now); effective != enums.FulfillmentStatusConfirmed {
		return forbidden(fmt.Sprintf("reviews open once delivery is confirmed; fulfillment is %s", effective))
	}
	if !order.PayoutStatus.IsTerminal() {
		return forbidden("reviews open once the payout is settled")
	}
	reviewed := order.BuyerReviewed
	if role == enums.ReviewRoleVendorToBuyer {
		reviewed = order.VendorReviewed
	}
	if reviewed {
		return pkgerrors.New(pkgerrors.CodeAlreadyReviewed, fmt.Sprintf("%s review already submitted", role))
	}
	return nil
}
