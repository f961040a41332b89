package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
	"gorm.io/gorm"
)

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, actor *Actor, at time.Time, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(order, actor),
		Data:          data,
		Version:       1,
		OccurredAt:    at,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func actorRef(order *models.Order, actor *Actor) *outbox.ActorRef {
	if actor == nil {
		return nil
	}
	role := partyOf(order, actor.UserID).String()
	if actor.IsAdmin() {
		role = enums.UserRoleAdmin.String()
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: role}
}

func payoutEventType(intent enums.PayoutIntent) enums.OutboxEventType {
	switch intent {
	case enums.PayoutIntentRelease:
		return enums.EventPayoutReleased
	case enums.PayoutIntentPartialRefund:
		return enums.EventPayoutPartiallyRefunded
	default:
		return enums.EventPayoutRefunded
	}
}

func ledgerEventType(intent enums.PayoutIntent) enums.LedgerEventType {
	switch intent {
	case enums.PayoutIntentRelease:
		return enums.LedgerEventTypeRelease
	case enums.PayoutIntentPartialRefund:
		return enums.LedgerEventTypePartialRefund
	default:
		return enums.LedgerEventTypeRefund
	}
}

func outcomeOf(intent enums.PayoutIntent) enums.DisputeOutcome {
	switch intent {
	case enums.PayoutIntentRelease:
		return enums.DisputeOutcomeRelease
	case enums.PayoutIntentPartialRefund:
		return enums.DisputeOutcomePartialRefund
	default:
		return enums.DisputeOutcomeRefund
	}
}

func orderCreatedPayload(order *models.Order, provider string) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:          order.ID,
		JobID:            order.JobID,
		OfferID:          order.OfferID,
		BuyerID:          order.BuyerID,
		VendorID:         order.VendorID,
		TotalAmountCents: order.TotalAmountCents,
		Currency:         order.Currency,
		Provider:         provider,
		CreatedAt:        order.CreatedAt,
	}
}

func orderPaidPayload(order *models.Order, at time.Time) payloads.OrderPaidEvent {
	return payloads.OrderPaidEvent{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		VendorID:    order.VendorID,
		AmountCents: order.TotalAmountCents,
		Currency:    order.Currency,
		PaidAt:      at,
	}
}

func deliveryConfirmedPayload(order *models.Order, at time.Time, source string) payloads.DeliveryConfirmedEvent {
	return payloads.DeliveryConfirmedEvent{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		VendorID:    order.VendorID,
		ConfirmedAt: at,
		Source:      source,
	}
}
