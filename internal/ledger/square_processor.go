package ledger

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/square"
	sq "github.com/square/square-go-sdk"
)

// SquarePaymentClient is implemented by *square.Client.
type SquarePaymentClient interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
	LocationID() string
}

// SquareProcessor escrows funds as delayed-capture Square payments.
type SquareProcessor struct {
	client SquarePaymentClient
}

func NewSquareProcessor(client SquarePaymentClient) (*SquareProcessor, error) {
	if client == nil {
		return nil, errors.New("square payment client required")
	}
	return &SquareProcessor{client: client}, nil
}

func (p *SquareProcessor) Name() string { return "square" }

func (p *SquareProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	payment, err := p.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency.String(),
		LocationID:     p.client.LocationID(),
		SourceID:       req.PaymentMethod,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.OfferID.String(),
		Note:           fmt.Sprintf("escrow hold for offer %s", req.OfferID),
		Autocomplete:   false,
	})
	if err != nil {
		return nil, classifySquareError(err)
	}
	id := derefString(payment.GetID())
	return &Authorization{
		PaymentReference: id,
		CaptureReference: id,
		Status:           squarePaymentStatus(derefString(payment.GetStatus())),
	}, nil
}

func (p *SquareProcessor) Lookup(ctx context.Context, reference string) (*PaymentState, error) {
	payment, err := p.client.GetPayment(ctx, reference)
	if err != nil {
		return nil, classifySquareError(err)
	}
	state := &PaymentState{Status: squarePaymentStatus(derefString(payment.GetStatus()))}
	switch state.Status {
	case PaymentStatusAuthorized:
		state.AuthorizedCents = square.MoneyAmount(payment.GetAmountMoney())
	case PaymentStatusCaptured:
		state.AuthorizedCents = square.MoneyAmount(payment.GetAmountMoney())
		state.CapturedCents = state.AuthorizedCents
		state.RefundedCents = square.MoneyAmount(payment.GetRefundedMoney())
	}
	return state, nil
}

// Capture completes the payment. Square cannot complete a smaller amount, so a
// partial capture completes the full amount and refunds the difference.
func (p *SquareProcessor) Capture(ctx context.Context, reference string, amountCents *int64, idempotencyKey string) (int64, error) {
	payment, err := p.client.CompletePayment(ctx, reference)
	if err != nil {
		return 0, classifySquareError(err)
	}
	total := square.MoneyAmount(payment.GetAmountMoney())
	if amountCents == nil || *amountCents >= total {
		return total, nil
	}
	remainder := total - *amountCents
	if _, err := p.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      reference,
		AmountCents:    remainder,
		Currency:       square.MoneyCurrency(payment.GetAmountMoney()),
		Reason:         "partial escrow capture",
		IdempotencyKey: idempotencyKey + ":remainder",
	}); err != nil {
		return 0, classifySquareError(err)
	}
	return *amountCents, nil
}

func (p *SquareProcessor) Void(ctx context.Context, reference, _ string) error {
	if _, err := p.client.CancelPayment(ctx, reference); err != nil {
		return classifySquareError(err)
	}
	return nil
}

func (p *SquareProcessor) Refund(ctx context.Context, reference string, amountCents int64, currency enums.Currency, reason, idempotencyKey string) (int64, error) {
	if _, err := p.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      reference,
		AmountCents:    amountCents,
		Currency:       currency.String(),
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
	}); err != nil {
		return 0, classifySquareError(err)
	}
	return amountCents, nil
}

func squarePaymentStatus(status string) PaymentStatus {
	switch status {
	case "APPROVED":
		return PaymentStatusAuthorized
	case "COMPLETED":
		return PaymentStatusCaptured
	case "CANCELED", "FAILED":
		return PaymentStatusCanceled
	default:
		return PaymentStatusPending
	}
}

func classifySquareError(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	return err
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
