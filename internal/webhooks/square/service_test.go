package squarewebhook

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/google/uuid"
)

type stubMarker struct {
	inputs []orders.MarkPaidInput
	err    error
}

func (s *stubMarker) MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: uuid.New(), PaymentReference: input.PaymentReference}, nil
}

func paymentEvent(eventType, status, updatedAt string) *SquareWebhookEvent {
	return &SquareWebhookEvent{
		EventID:   "evt_" + uuid.NewString(),
		Type:      eventType,
		CreatedAt: "2026-03-01T09:00:05Z",
		Data: SquareWebhookData{
			Type: "payment",
			ID:   "sq_pay_1",
			Object: SquareWebhookObject{
				Payment: &SquarePayment{ID: "sq_pay_1", Status: status, UpdatedAt: updatedAt},
			},
		},
	}
}

func TestService_ApprovedPaymentMarksOrderPaid(t *testing.T) {
	marker := &stubMarker{}
	service, err := NewService(ServiceParams{Orders: marker})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	if err := service.HandleEvent(context.Background(), paymentEvent("payment.updated", "APPROVED", "2026-03-01T09:00:00Z")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(marker.inputs) != 1 {
		t.Fatalf("expected one MarkPaid call, got %d", len(marker.inputs))
	}
	want := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	if marker.inputs[0].PaymentReference != "sq_pay_1" || !marker.inputs[0].PaidAt.Equal(want) {
		t.Fatalf("unexpected input %+v", marker.inputs[0])
	}
}

func TestService_CompletedPaymentFallsBackToEventTime(t *testing.T) {
	marker := &stubMarker{}
	service, _ := NewService(ServiceParams{Orders: marker})

	if err := service.HandleEvent(context.Background(), paymentEvent("payment.updated", "completed", "")); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	want := time.Date(2026, time.March, 1, 9, 0, 5, 0, time.UTC)
	if len(marker.inputs) != 1 || !marker.inputs[0].PaidAt.Equal(want) {
		t.Fatalf("expected paidAt from event time, got %+v", marker.inputs)
	}
}

func TestService_IgnoresOtherStatusesAndTypes(t *testing.T) {
	marker := &stubMarker{}
	service, _ := NewService(ServiceParams{Orders: marker})
	ctx := context.Background()

	for _, event := range []*SquareWebhookEvent{
		paymentEvent("payment.updated", "PENDING", ""),
		paymentEvent("payment.updated", "CANCELED", ""),
		paymentEvent("payment.updated", "FAILED", ""),
		paymentEvent("refund.updated", "COMPLETED", ""),
	} {
		if err := service.HandleEvent(ctx, event); err != nil {
			t.Fatalf("%s/%s: unexpected error %v", event.Type, event.Data.Object.Payment.Status, err)
		}
	}
	if len(marker.inputs) != 0 {
		t.Fatalf("expected no MarkPaid calls, got %d", len(marker.inputs))
	}
}

func TestService_UnknownPaymentIsAcknowledged(t *testing.T) {
	marker := &stubMarker{err: pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment reference")}
	service, _ := NewService(ServiceParams{Orders: marker})

	if err := service.HandleEvent(context.Background(), paymentEvent("payment.updated", "APPROVED", "")); err != nil {
		t.Fatalf("expected acknowledgement, got %v", err)
	}
}

func TestService_RejectsMissingPayment(t *testing.T) {
	service, _ := NewService(ServiceParams{Orders: &stubMarker{}})

	event := paymentEvent("payment.updated", "APPROVED", "")
	event.Data.Object.Payment = nil
	if err := service.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := service.HandleEvent(context.Background(), nil); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for nil event, got %v", err)
	}
}
