package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	squarewebhook "github.com/angelmondragon/surfacemarket-backend/internal/webhooks/square"
	"github.com/angelmondragon/surfacemarket-backend/pkg/square"
)

const squareSig = "c3F1YXJlLXNpZw=="

type squareRecorder struct {
	payments []string
}

func (s *squareRecorder) HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error {
	if p := event.Data.Object.Payment; p != nil {
		s.payments = append(s.payments, p.ID)
	}
	return nil
}

func squareEvent(t *testing.T, eventID, paymentID string) []byte {
	t.Helper()
	raw, err := json.Marshal(squarewebhook.SquareWebhookEvent{
		EventID:   eventID,
		Type:      "payment.updated",
		CreatedAt: "2026-03-01T09:00:05Z",
		Data: squarewebhook.SquareWebhookData{
			Type: "payment",
			ID:   paymentID,
			Object: squarewebhook.SquareWebhookObject{
				Payment: &squarewebhook.SquarePayment{ID: paymentID, Status: "APPROVED"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func deliverSquare(h http.Handler, body []byte, signature string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(square.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestSquareWebhookAppliesEventOnce(t *testing.T) {
	rec := &squareRecorder{}
	h := SquareWebhook(rec, signatureStub{want: squareSig}, newGuard(t, "square-webhook"), nil)
	body := squareEvent(t, "evt_1", "sq_pay_1")

	if got := deliverSquare(h, body, squareSig); got != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, got)
	}
	if got := deliverSquare(h, body, squareSig); got != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, got)
	}
	if len(rec.payments) != 1 || rec.payments[0] != "sq_pay_1" {
		t.Fatalf("expected sq_pay_1 applied once, got %v", rec.payments)
	}
}

func TestSquareWebhookDedupesOnPaymentWithoutEventID(t *testing.T) {
	rec := &squareRecorder{}
	h := SquareWebhook(rec, signatureStub{want: squareSig}, newGuard(t, "square-webhook"), nil)
	body := squareEvent(t, "", "sq_pay_2")

	deliverSquare(h, body, squareSig)
	deliverSquare(h, body, squareSig)
	if len(rec.payments) != 1 {
		t.Fatalf("expected one payment applied, got %v", rec.payments)
	}
}

func TestSquareWebhookRejectsBadSignatures(t *testing.T) {
	rec := &squareRecorder{}
	h := SquareWebhook(rec, signatureStub{want: squareSig}, newGuard(t, "square-webhook"), nil)
	body := squareEvent(t, "evt_3", "sq_pay_3")

	if got := deliverSquare(h, body, "forged"); got != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, got)
	}
	if got := deliverSquare(h, body, ""); got != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, got)
	}
	if len(rec.payments) != 0 {
		t.Fatalf("expected no payments applied, got %v", rec.payments)
	}
}

func TestSquareWebhookRejectsEventWithoutIDs(t *testing.T) {
	rec := &squareRecorder{}
	h := SquareWebhook(rec, signatureStub{want: squareSig}, newGuard(t, "square-webhook"), nil)

	if got := deliverSquare(h, squareEvent(t, "", ""), squareSig); got != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, got)
	}
	if got := deliverSquare(h, []byte("{"), squareSig); got != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, got)
	}
}

func TestSquareWebhookMissingDependencies(t *testing.T) {
	h := SquareWebhook(&squareRecorder{}, nil, newGuard(t, "square-webhook"), nil)
	if got := deliverSquare(h, squareEvent(t, "evt_4", "p"), squareSig); got != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, got)
	}
}
