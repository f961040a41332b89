package ledger

import (
	"context"
	"errors"
	"net"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/google/uuid"
)

// ErrOutcomeUnknown marks processor failures where the movement may have been applied.
var ErrOutcomeUnknown = errors.New("ledger outcome unknown")

// PaymentStatus is the processor-side state of an escrowed payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

// PaymentState is what the processor currently reports for a payment.
type PaymentState struct {
	Status          PaymentStatus
	AuthorizedCents int64
	CapturedCents   int64
	RefundedCents   int64
}

// AuthorizeRequest places a hold on the buyer's payment method.
type AuthorizeRequest struct {
	OfferID         uuid.UUID
	BuyerID         uuid.UUID
	VendorID        uuid.UUID
	AmountCents     int64
	Currency        enums.Currency
	PaymentMethod   string
	PayoutAccountID *string
	IdempotencyKey  string
}

// Authorization identifies a hold at the processor.
type Authorization struct {
	PaymentReference string
	CaptureReference string
	Status           PaymentStatus
}

// Processor is the narrow surface the ledger adapter needs from a payment provider.
type Processor interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Lookup(ctx context.Context, reference string) (*PaymentState, error)
	Capture(ctx context.Context, reference string, amountCents *int64, idempotencyKey string) (int64, error)
	Void(ctx context.Context, reference, idempotencyKey string) error
	Refund(ctx context.Context, reference string, amountCents int64, currency enums.Currency, reason, idempotencyKey string) (int64, error)
}

// IsAmbiguous reports whether err leaves the processor-side result undetermined.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutcomeUnknown) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
