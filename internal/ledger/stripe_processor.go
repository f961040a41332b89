package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/surfacemarket-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"
)

// StripePaymentClient exposes the subset of Stripe operations the escrow flow needs.
type StripePaymentClient interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Refund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripePaymentWrapper struct{}

// NewStripePaymentClient wraps the initialized Stripe client so processors can be tested.
func NewStripePaymentClient(api *pkgstripe.Client) StripePaymentClient {
	if api == nil {
		return nil
	}
	return &stripePaymentWrapper{}
}

func (w *stripePaymentWrapper) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripePaymentWrapper) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

func (w *stripePaymentWrapper) Capture(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Capture(id, params)
}

func (w *stripePaymentWrapper) Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Cancel(id, params)
}

func (w *stripePaymentWrapper) Refund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}

// StripeProcessor escrows funds as manual-capture PaymentIntents.
type StripeProcessor struct {
	client StripePaymentClient
}

// NewStripeProcessor builds a processor on top of the Stripe payment client.
func NewStripeProcessor(client StripePaymentClient) (*StripeProcessor, error) {
	if client == nil {
		return nil, errors.New("stripe payment client required")
	}
	return &StripeProcessor{client: client}, nil
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency.String())),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
		params.Confirm = stripe.Bool(true)
	}
	if req.PayoutAccountID != nil && *req.PayoutAccountID != "" {
		params.TransferData = &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(*req.PayoutAccountID),
		}
	}
	params.AddMetadata("offer_id", req.OfferID.String())
	params.AddMetadata("buyer_id", req.BuyerID.String())
	params.AddMetadata("vendor_id", req.VendorID.String())
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := p.client.Create(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &Authorization{
		PaymentReference: pi.ID,
		CaptureReference: pi.ID,
		Status:           stripePaymentStatus(pi.Status),
	}, nil
}

func (p *StripeProcessor) Lookup(ctx context.Context, reference string) (*PaymentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	pi, err := p.client.Get(ctx, reference, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return stripePaymentState(pi), nil
}

func (p *StripeProcessor) Capture(ctx context.Context, reference string, amountCents *int64, idempotencyKey string) (int64, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	if amountCents != nil {
		params.AmountToCapture = stripe.Int64(*amountCents)
	}
	params.SetIdempotencyKey(idempotencyKey)
	pi, err := p.client.Capture(ctx, reference, params)
	if err != nil {
		return 0, classifyStripeError(err)
	}
	return pi.AmountReceived, nil
}

func (p *StripeProcessor) Void(ctx context.Context, reference, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}
	params.SetIdempotencyKey(idempotencyKey)
	if _, err := p.client.Cancel(ctx, reference, params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func (p *StripeProcessor) Refund(ctx context.Context, reference string, amountCents int64, currency enums.Currency, reason, idempotencyKey string) (int64, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(amountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.AddMetadata("currency", currency.String())
	params.SetIdempotencyKey(idempotencyKey)
	r, err := p.client.Refund(ctx, params)
	if err != nil {
		return 0, classifyStripeError(err)
	}
	return r.Amount, nil
}

func stripePaymentStatus(status stripe.PaymentIntentStatus) PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return PaymentStatusAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentStatusCaptured
	case stripe.PaymentIntentStatusCanceled:
		return PaymentStatusCanceled
	default:
		return PaymentStatusPending
	}
}

func stripePaymentState(pi *stripe.PaymentIntent) *PaymentState {
	state := &PaymentState{Status: stripePaymentStatus(pi.Status)}
	switch state.Status {
	case PaymentStatusAuthorized:
		state.AuthorizedCents = pi.AmountCapturable
	case PaymentStatusCaptured:
		state.AuthorizedCents = pi.Amount
		state.CapturedCents = pi.AmountReceived
		if pi.LatestCharge != nil {
			state.RefundedCents = pi.LatestCharge.AmountRefunded
		}
	}
	return state
}

// 5xx and transport failures may still have been applied on Stripe's side.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: stripe: %v", ErrOutcomeUnknown, err)
		}
		return fmt.Errorf("stripe: %w", err)
	}
	if IsAmbiguous(err) {
		return err
	}
	return fmt.Errorf("%w: stripe: %v", ErrOutcomeUnknown, err)
}
