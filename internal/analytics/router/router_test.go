package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := types.Envelope{
		EventType: enums.AnalyticsEventType("review_submitted"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router, writer := newTestRouter(t, map[enums.AnalyticsEventType]Handler{
		enums.AnalyticsEventDisputeOpened: handler,
	})
	data, _ := json.Marshal(payloads.DisputeOpenedEvent{OrderID: uuid.New(), Reason: "Schichtdicke zu gering"})
	env := types.Envelope{EventType: enums.AnalyticsEventDisputeOpened, Payload: data}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !handler.called {
		t.Fatal("expected override to run")
	}
	decoded, ok := handler.payload.(*payloads.DisputeOpenedEvent)
	if !ok {
		t.Fatalf("expected decoded dispute payload, got %T", handler.payload)
	}
	if decoded.Reason != "Schichtdicke zu gering" {
		t.Errorf("unexpected reason %q", decoded.Reason)
	}
	if len(writer.inserted) != 0 {
		t.Errorf("expected no rows, got %d", len(writer.inserted))
	}
}

func TestRouterRejectsEmptyAndMalformedPayloads(t *testing.T) {
	router, writer := newTestRouter(t, nil)

	if err := router.Handle(context.Background(), types.Envelope{EventType: enums.AnalyticsEventOrderPaid}); err == nil {
		t.Error("expected empty payload to be rejected")
	}
	if err := router.Handle(context.Background(), types.Envelope{EventType: enums.AnalyticsEventOrderPaid, Payload: []byte(`{"order_id":`)}); err == nil {
		t.Error("expected malformed payload to be rejected")
	}
	if len(writer.inserted) != 0 {
		t.Errorf("expected no rows, got %d", len(writer.inserted))
	}
}

func TestOrderCreatedWritesHoldRow(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	event := payloads.OrderCreatedEvent{
		OrderID:          uuid.New(),
		BuyerID:          uuid.New(),
		VendorID:         uuid.New(),
		TotalAmountCents: 48000,
		Currency:         enums.CurrencyEUR,
		Provider:         "stripe",
		CreatedAt:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env := envelopeFor(t, enums.AnalyticsEventOrderCreated, event.OrderID, event)

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("expected 1 row, got %d", len(writer.inserted))
	}
	row := writer.inserted[0]
	if row.EventID != "evt-1" || row.EventType != "order_created" {
		t.Errorf("unexpected event %s/%s", row.EventID, row.EventType)
	}
	if row.OrderID != event.OrderID.String() {
		t.Errorf("expected order %s, got %s", event.OrderID, row.OrderID)
	}
	if row.VendorID == nil || *row.VendorID != event.VendorID.String() {
		t.Errorf("expected vendor %s, got %v", event.VendorID, row.VendorID)
	}
	if row.AmountCents == nil || *row.AmountCents != 48000 {
		t.Errorf("expected amount 48000, got %v", row.AmountCents)
	}
	if got := *row.PayoutStatus; got != "hold" {
		t.Errorf("expected hold, got %q", got)
	}
	if got := *row.FulfillmentStatus; got != "in_progress" {
		t.Errorf("expected in_progress, got %q", got)
	}
	if got := *row.Provider; got != "stripe" {
		t.Errorf("expected stripe, got %q", got)
	}
	if !row.Payload.Valid {
		t.Error("expected raw payload to be stored")
	}
	if row.ReleasedCents != nil {
		t.Errorf("order creation carries no release, got %d", *row.ReleasedCents)
	}
}

func TestPayoutEventsShareProjection(t *testing.T) {
	cases := []struct {
		eventType enums.AnalyticsEventType
		status    enums.PayoutStatus
		released  int64
		refunded  int64
	}{
		{enums.AnalyticsEventPayoutReleased, enums.PayoutStatusReleased, 48000, 0},
		{enums.AnalyticsEventPayoutRefunded, enums.PayoutStatusRefunded, 0, 48000},
		{enums.AnalyticsEventPayoutPartial, enums.PayoutStatusPartialRefund, 30000, 18000},
	}
	for _, tc := range cases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			router, writer := newTestRouter(t, nil)
			event := payloads.PayoutSettledEvent{
				OrderID:       uuid.New(),
				BuyerID:       uuid.New(),
				VendorID:      uuid.New(),
				PayoutStatus:  tc.status,
				ReleasedCents: tc.released,
				RefundedCents: tc.refunded,
				Currency:      enums.CurrencyEUR,
				Provider:      "square",
			}
			if err := router.Handle(context.Background(), envelopeFor(t, tc.eventType, event.OrderID, event)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(writer.inserted) != 1 {
				t.Fatalf("expected 1 row, got %d", len(writer.inserted))
			}
			row := writer.inserted[0]
			if row.EventType != string(tc.eventType) {
				t.Errorf("expected %s, got %s", tc.eventType, row.EventType)
			}
			if got := *row.ReleasedCents; got != tc.released {
				t.Errorf("released: expected %d, got %d", tc.released, got)
			}
			if got := *row.RefundedCents; got != tc.refunded {
				t.Errorf("refunded: expected %d, got %d", tc.refunded, got)
			}
			if got := *row.PayoutStatus; got != string(tc.status) {
				t.Errorf("expected status %s, got %s", tc.status, got)
			}
		})
	}
}

func TestDisputeResolvedCarriesOutcome(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	event := payloads.DisputeResolvedEvent{
		OrderID:           uuid.New(),
		Outcome:           enums.DisputeOutcomePartialRefund,
		RefundAmountCents: 5000,
	}
	if err := router.Handle(context.Background(), envelopeFor(t, enums.AnalyticsEventDisputeResolved, event.OrderID, event)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("expected 1 row, got %d", len(writer.inserted))
	}
	row := writer.inserted[0]
	if got := *row.DisputeOutcome; got != "partial_refund" {
		t.Errorf("expected partial_refund, got %q", got)
	}
	if got := *row.RefundedCents; got != 5000 {
		t.Errorf("expected 5000 refunded, got %d", got)
	}
	if row.BuyerID != nil {
		t.Errorf("dispute resolution carries no buyer, got %s", *row.BuyerID)
	}
}

func TestOrderPaidUsesPaymentTime(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	paidAt := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	event := payloads.OrderPaidEvent{OrderID: uuid.New(), AmountCents: 1000, Currency: enums.CurrencyEUR, PaidAt: paidAt}

	if err := router.Handle(context.Background(), envelopeFor(t, enums.AnalyticsEventOrderPaid, event.OrderID, event)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(writer.inserted) != 1 {
		t.Fatalf("expected 1 row, got %d", len(writer.inserted))
	}
	if got := writer.inserted[0].OccurredAt; !got.Equal(paidAt) {
		t.Errorf("expected paid_at %v, got %v", paidAt, got)
	}
}

func TestWriterFailureIsReturned(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	writer.err = errors.New("bigquery down")
	event := payloads.DeliveryReportedEvent{OrderID: uuid.New()}

	err := router.Handle(context.Background(), envelopeFor(t, enums.AnalyticsEventDeliveryReported, event.OrderID, event))
	if err == nil || err.Error() != "bigquery down" {
		t.Errorf("expected writer error, got %v", err)
	}
}

func TestNonOrderAggregateIsUnsupported(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	env := envelopeFor(t, enums.AnalyticsEventDeliveryReported, uuid.New(), payloads.DeliveryReportedEvent{})
	env.AggregateType = enums.AggregateReview

	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if len(writer.inserted) != 0 {
		t.Errorf("expected no rows, got %d", len(writer.inserted))
	}
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	if _, err := NewRouter(nil, logger.New(logger.Options{ServiceName: "t"}), nil); err == nil {
		t.Fatal("expected writer to be required")
	}
	if _, err := NewRouter(&fakeWriter{}, nil, nil); err == nil {
		t.Fatal("expected logger to be required")
	}
}

func newTestRouter(t *testing.T, overrides map[enums.AnalyticsEventType]Handler) (*Router, *fakeWriter) {
	t.Helper()
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

func envelopeFor(t *testing.T, eventType enums.AnalyticsEventType, orderID uuid.UUID, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:       "evt-1",
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID.String(),
		OccurredAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:       data,
	}
}

type fakeWriter struct {
	inserted []types.EscrowEventRow
	err      error
}

func (f *fakeWriter) InsertEscrowEvent(_ context.Context, row types.EscrowEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}

type stubHandler struct {
	called  bool
	payload any
}

func (s *stubHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	s.called = true
	s.payload = payload
	return nil
}
