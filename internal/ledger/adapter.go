package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
	"github.com/google/uuid"
)

// Movement describes one escrow money movement for an order.
type Movement struct {
	OrderID     uuid.UUID
	Intent      enums.PayoutIntent
	Reference   string
	Currency    enums.Currency
	TotalCents  int64
	RefundCents int64
	Reason      string
}

// Result reports what the processor actually moved.
type Result struct {
	Provider       string
	Reference      string
	IdempotencyKey string
	ReleasedCents  int64
	RefundedCents  int64
}

// Adapter applies escrow movements against the configured processor with
// deterministic idempotency keys and a bounded timeout per call.
type Adapter struct {
	processor Processor
	timeout   time.Duration
	metrics   *metrics.EscrowMetrics
	logg      *logger.Logger
}

func NewAdapter(processor Processor, cfg config.LedgerConfig, m *metrics.EscrowMetrics, logg *logger.Logger) (*Adapter, error) {
	if processor == nil {
		return nil, errors.New("ledger processor required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{processor: processor, timeout: timeout, metrics: m, logg: logg}, nil
}

// Provider names the processor backing the adapter.
func (a *Adapter) Provider() string {
	return a.processor.Name()
}

// HoldKey is the idempotency key for the escrow hold placed on offer acceptance.
func HoldKey(offerID uuid.UUID) string {
	return "hold:" + offerID.String()
}

// MovementKey is the idempotency key for a payout movement on an order.
func MovementKey(intent enums.PayoutIntent, orderID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", intent, orderID)
}

// Hold authorizes the full order total on the buyer's payment method.
func (a *Adapter) Hold(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold amount must be positive")
	}
	req.IdempotencyKey = HoldKey(req.OfferID)
	var auth *Authorization
	err := a.call(ctx, "authorize", func(callCtx context.Context) error {
		var err error
		auth, err = a.processor.Authorize(callCtx, req)
		return err
	})
	if err != nil {
		return nil, a.ledgerError("authorize", err)
	}
	return auth, nil
}

// Status reads the processor state of a payment.
func (a *Adapter) Status(ctx context.Context, reference string) (*PaymentState, error) {
	var state *PaymentState
	err := a.call(ctx, "lookup", func(callCtx context.Context) error {
		var err error
		state, err = a.processor.Lookup(callCtx, reference)
		return err
	})
	if err != nil {
		return nil, a.ledgerError("lookup", err)
	}
	return state, nil
}

// Execute applies the movement. Re-executing a movement that already reached
// the processor returns the same result without moving money twice.
func (a *Adapter) Execute(ctx context.Context, mv Movement) (*Result, error) {
	if mv.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	if !mv.Intent.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout intent %q", mv.Intent))
	}
	key := MovementKey(mv.Intent, mv.OrderID)
	result := &Result{Provider: a.processor.Name(), Reference: mv.Reference, IdempotencyKey: key}

	state, err := a.Status(ctx, mv.Reference)
	if err != nil {
		return nil, err
	}

	switch mv.Intent {
	case enums.PayoutIntentRelease:
		err = a.release(ctx, mv, key, state, result)
	case enums.PayoutIntentRefund:
		err = a.refund(ctx, mv, key, state, result)
	case enums.PayoutIntentPartialRefund:
		err = a.partialRefund(ctx, mv, key, state, result)
	case enums.PayoutIntentEscalateRefund:
		err = a.escalateRefund(ctx, mv, key, state, result)
	}
	if err != nil {
		return nil, err
	}

	if a.logg != nil {
		logCtx := a.logg.WithFields(a.logg.WithOrderID(ctx, mv.OrderID.String()), map[string]any{
			"intent":         mv.Intent.String(),
			"provider":       result.Provider,
			"released_cents": result.ReleasedCents,
			"refunded_cents": result.RefundedCents,
		})
		a.logg.Info(logCtx, "ledger movement applied")
	}
	return result, nil
}

// Release captures the held funds for the vendor.
func (a *Adapter) Release(ctx context.Context, captureReference string, orderID uuid.UUID, totalCents int64) (int64, error) {
	result, err := a.Execute(ctx, Movement{
		OrderID:    orderID,
		Intent:     enums.PayoutIntentRelease,
		Reference:  captureReference,
		TotalCents: totalCents,
	})
	if err != nil {
		return 0, err
	}
	return result.ReleasedCents, nil
}

// Refund returns funds to the buyer, the full total when amountCents is nil.
func (a *Adapter) Refund(ctx context.Context, captureReference string, orderID uuid.UUID, totalCents int64, amountCents *int64, currency enums.Currency, reason string) (int64, error) {
	mv := Movement{
		OrderID:    orderID,
		Intent:     enums.PayoutIntentRefund,
		Reference:  captureReference,
		Currency:   currency,
		TotalCents: totalCents,
		Reason:     reason,
	}
	if amountCents != nil && *amountCents < totalCents {
		mv.Intent = enums.PayoutIntentPartialRefund
		mv.RefundCents = *amountCents
	}
	result, err := a.Execute(ctx, mv)
	if err != nil {
		return 0, err
	}
	return result.RefundedCents, nil
}

func (a *Adapter) release(ctx context.Context, mv Movement, key string, state *PaymentState, result *Result) error {
	switch state.Status {
	case PaymentStatusCaptured:
		result.ReleasedCents = state.CapturedCents - state.RefundedCents
		return nil
	case PaymentStatusAuthorized:
		var captured int64
		err := a.call(ctx, "capture", func(callCtx context.Context) error {
			var err error
			captured, err = a.processor.Capture(callCtx, mv.Reference, nil, key+":capture")
			return err
		})
		if err != nil {
			return a.ledgerError("capture", err)
		}
		result.ReleasedCents = captured
		return nil
	default:
		return a.unexpectedState("release", state)
	}
}

func (a *Adapter) refund(ctx context.Context, mv Movement, key string, state *PaymentState, result *Result) error {
	switch state.Status {
	case PaymentStatusCanceled:
		result.RefundedCents = mv.TotalCents
		return nil
	case PaymentStatusAuthorized:
		err := a.call(ctx, "void", func(callCtx context.Context) error {
			return a.processor.Void(callCtx, mv.Reference, key+":void")
		})
		if err != nil {
			return a.ledgerError("void", err)
		}
		result.RefundedCents = mv.TotalCents
		return nil
	case PaymentStatusCaptured:
		remaining := state.CapturedCents - state.RefundedCents
		if remaining > 0 {
			if err := a.refundAmount(ctx, mv, remaining, key+":refund"); err != nil {
				return err
			}
		}
		result.RefundedCents = mv.TotalCents
		return nil
	default:
		return a.unexpectedState("refund", state)
	}
}

func (a *Adapter) partialRefund(ctx context.Context, mv Movement, key string, state *PaymentState, result *Result) error {
	if mv.RefundCents <= 0 || mv.RefundCents >= mv.TotalCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "partial refund amount must be between zero and the order total")
	}
	keep := mv.TotalCents - mv.RefundCents
	switch state.Status {
	case PaymentStatusAuthorized:
		var captured int64
		err := a.call(ctx, "capture", func(callCtx context.Context) error {
			var err error
			captured, err = a.processor.Capture(callCtx, mv.Reference, &keep, key+":capture")
			return err
		})
		if err != nil {
			return a.ledgerError("capture", err)
		}
		result.ReleasedCents = captured
		result.RefundedCents = mv.TotalCents - captured
		return nil
	case PaymentStatusCaptured:
		settled := state.CapturedCents - state.RefundedCents
		if settled > keep {
			if err := a.refundAmount(ctx, mv, settled-keep, key+":refund"); err != nil {
				return err
			}
			settled = keep
		}
		result.ReleasedCents = settled
		result.RefundedCents = mv.TotalCents - settled
		return nil
	default:
		return a.unexpectedState("partial refund", state)
	}
}

func (a *Adapter) escalateRefund(ctx context.Context, mv Movement, key string, state *PaymentState, result *Result) error {
	switch state.Status {
	case PaymentStatusCaptured:
		remaining := state.CapturedCents - state.RefundedCents
		if remaining > 0 {
			if err := a.refundAmount(ctx, mv, remaining, key+":refund"); err != nil {
				return err
			}
		}
		result.RefundedCents = remaining
		return nil
	case PaymentStatusCanceled:
		return nil
	default:
		return a.unexpectedState("escalate refund", state)
	}
}

func (a *Adapter) refundAmount(ctx context.Context, mv Movement, amount int64, key string) error {
	err := a.call(ctx, "refund", func(callCtx context.Context) error {
		_, err := a.processor.Refund(callCtx, mv.Reference, amount, mv.Currency, mv.Reason, key)
		return err
	})
	if err != nil {
		return a.ledgerError("refund", err)
	}
	return nil
}

func (a *Adapter) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	started := time.Now()
	err := fn(callCtx)
	outcome := "ok"
	switch {
	case err == nil:
	case IsAmbiguous(err):
		outcome = "unknown"
	default:
		outcome = "error"
	}
	a.metrics.ObserveLedgerCall(a.processor.Name(), op, outcome, time.Since(started))
	return err
}

func (a *Adapter) ledgerError(op string, err error) error {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeLedgerUnavailable {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, err, fmt.Sprintf("%s %s failed", a.processor.Name(), op)).
		WithDetails(map[string]any{
			"operation":       op,
			"outcome_unknown": IsAmbiguous(err),
		})
}

func (a *Adapter) unexpectedState(op string, state *PaymentState) error {
	return pkgerrors.New(pkgerrors.CodeLedgerUnavailable, fmt.Sprintf("cannot %s payment in state %s", op, state.Status)).
		WithDetails(map[string]any{
			"operation":       op,
			"outcome_unknown": false,
		})
}
