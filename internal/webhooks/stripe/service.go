package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

type paymentMarker interface {
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders paymentMarker
	Logger *logger.Logger
}

// Service applies Stripe payment events to escrowed orders.
type Service struct {
	orders paymentMarker
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{
		orders: params.Orders,
		logg:   params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentAmountCapturableUpdated,
		stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
		}
		var paidAt time.Time
		if event.Created > 0 {
			paidAt = time.Unix(event.Created, 0).UTC()
		}
		return s.markPaid(ctx, intent.ID, paidAt)
	case stripe.EventTypePaymentIntentCanceled:
		s.warn(ctx, event.GetObjectValue("id"), "stripe hold canceled outside escrow flow")
		return nil
	case stripe.EventTypeChargeRefunded:
		s.info(ctx, event.GetObjectValue("payment_intent"), "stripe charge refunded")
		return nil
	default:
		return nil
	}
}

// markPaid acknowledges payments the marketplace does not know about so the
// processor stops redelivering them.
func (s *Service) markPaid(ctx context.Context, reference string, paidAt time.Time) error {
	order, err := s.orders.MarkPaid(ctx, orders.MarkPaidInput{PaymentReference: reference, PaidAt: paidAt})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.warn(ctx, reference, "stripe payment has no escrowed order")
			return nil
		}
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order marked paid from stripe")
	}
	return nil
}

func (s *Service) warn(ctx context.Context, reference, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "payment_reference", reference), msg)
}

func (s *Service) info(ctx context.Context, reference, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_reference", reference), msg)
}
