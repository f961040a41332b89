package squarewebhook

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

const (
	eventPaymentUpdated = "payment.updated"

	statusApproved  = "APPROVED"
	statusCompleted = "COMPLETED"
	statusCanceled  = "CANCELED"
	statusFailed    = "FAILED"
)

type paymentMarker interface {
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders paymentMarker
	Logger *logger.Logger
}

// Service applies Square payment events to escrowed orders.
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

type SquareWebhookEvent struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	CreatedAt string            `json:"created_at"`
	Data      SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

type SquarePayment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ReferenceID string `json:"reference_id,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// HandleEvent processes Square payment events. An APPROVED delayed-capture
// payment is the escrow hold succeeding.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	if strings.ToLower(event.Type) != eventPaymentUpdated {
		return nil
	}
	payment := event.Data.Object.Payment
	if payment == nil || payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}

	switch strings.ToUpper(payment.Status) {
	case statusApproved, statusCompleted:
		return s.markPaid(ctx, payment.ID, parseTimestamp(payment.UpdatedAt, event.CreatedAt))
	case statusCanceled, statusFailed:
		if s.logg != nil {
			ctx = s.logg.WithFields(ctx, map[string]any{"payment_reference": payment.ID, "status": payment.Status})
			s.logg.Warn(ctx, "square payment left escrow outside escrow flow")
		}
		return nil
	default:
		return nil
	}
}

func (s *Service) markPaid(ctx context.Context, reference string, paidAt time.Time) error {
	order, err := s.orders.MarkPaid(ctx, orders.MarkPaidInput{PaymentReference: reference, PaidAt: paidAt})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "payment_reference", reference), "square payment has no escrowed order")
			}
			return nil
		}
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order marked paid from square")
	}
	return nil
}

// parseTimestamp returns the first RFC 3339 value that parses, or zero.
func parseTimestamp(values ...string) time.Time {
	for _, value := range values {
		if value == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
