package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/ledger"
	"github.com/angelmondragon/surfacemarket-backend/internal/offers"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/metrics"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type jobReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// LedgerGateway moves escrowed money at the payment processor.
type LedgerGateway interface {
	Provider() string
	Hold(ctx context.Context, req ledger.AuthorizeRequest) (*ledger.Authorization, error)
	Execute(ctx context.Context, mv ledger.Movement) (*ledger.Result, error)
}

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor carries the platform admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// AcceptOfferInput turns an open offer into a paid-for order.
type AcceptOfferInput struct {
	OfferID       uuid.UUID
	Buyer         Actor
	PaymentMethod string
}

// MarkPaidInput is a processor confirmation that the hold succeeded.
type MarkPaidInput struct {
	PaymentReference string
	PaidAt           time.Time
}

// ResolveDisputeInput is an administrative decision on a disputed order.
type ResolveDisputeInput struct {
	OrderID           uuid.UUID
	Actor             Actor
	Outcome           enums.DisputeOutcome
	RefundAmountCents int64
}

// Service defines the escrow operations on orders.
type Service interface {
	AcceptOffer(ctx context.Context, input AcceptOfferInput) (*models.Order, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error)
	ReportDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	OpenDispute(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	Release(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Order, error)
	EscalateRefund(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	ResumeIntent(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, viewer Actor) (*OrderView, error)
	ViewOf(order *models.Order, viewer Actor) OrderView
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo              Repository
	Offers            offers.Repository
	Jobs              jobReader
	Profiles          profileReader
	Ledger            LedgerGateway
	LedgerEvents      ledger.Service
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Policy            WindowPolicy
	IntentStaleAfter  time.Duration
	Metrics           *metrics.EscrowMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo         Repository
	offers       offers.Repository
	jobs         jobReader
	profiles     profileReader
	ledger       LedgerGateway
	ledgerEvents ledger.Service
	outbox       outboxPublisher
	tx           txRunner
	policy       WindowPolicy
	staleAfter   time.Duration
	metrics      *metrics.EscrowMetrics
	logg         *logger.Logger
	clock        func() time.Time
}

var errLostRace = errors.New("order changed concurrently")

const finalizeAttempts = 3

// NewService builds an order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers repository required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("jobs repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger gateway required")
	}
	if params.LedgerEvents == nil {
		return nil, fmt.Errorf("ledger event service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	staleAfter := params.IntentStaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:         params.Repo,
		offers:       params.Offers,
		jobs:         params.Jobs,
		profiles:     params.Profiles,
		ledger:       params.Ledger,
		ledgerEvents: params.LedgerEvents,
		outbox:       params.Outbox,
		tx:           params.TransactionRunner,
		policy:       params.Policy,
		staleAfter:   staleAfter,
		metrics:      params.Metrics,
		logg:         params.Logger,
		clock:        clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// afterLostRace re-runs check against the current row once a compare-and-set
// matched nothing, so the caller sees why the state moved on.
func (s *service) afterLostRace(ctx context.Context, id uuid.UUID, check func(*models.Order) error, fallback error) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := check(current); err != nil {
		return err
	}
	return fallback
}

func (s *service) AcceptOffer(ctx context.Context, input AcceptOfferInput) (*models.Order, error) {
	if input.OfferID == uuid.Nil || input.Buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id and buyer are required")
	}
	offer, err := s.offers.FindByID(ctx, input.OfferID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer.Status != enums.OfferStatusOpen {
		existing, err := s.repo.FindByOfferID(ctx, offer.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for offer")
		}
		if existing != nil && existing.BuyerID == input.Buyer.UserID {
			return existing, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("offer is %s", offer.Status))
	}

	job, err := s.jobs.FindByID(ctx, offer.JobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.BuyerID != input.Buyer.UserID {
		return nil, forbidden("only the job owner can accept offers")
	}
	if offer.VendorID == job.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer and vendor must differ")
	}
	if offer.GoodsAmountCents < 0 || offer.LogisticsAmountCents < 0 || offer.GoodsAmountCents+offer.LogisticsAmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer amount must be positive")
	}

	buyerProfile, err := s.loadProfile(ctx, job.BuyerID, "buyer")
	if err != nil {
		return nil, err
	}
	vendorProfile, err := s.loadProfile(ctx, offer.VendorID, "vendor")
	if err != nil {
		return nil, err
	}

	total := offer.GoodsAmountCents + offer.LogisticsAmountCents
	auth, err := s.ledger.Hold(ctx, ledger.AuthorizeRequest{
		OfferID:         offer.ID,
		BuyerID:         job.BuyerID,
		VendorID:        offer.VendorID,
		AmountCents:     total,
		Currency:        offer.Currency,
		PaymentMethod:   strings.TrimSpace(input.PaymentMethod),
		PayoutAccountID: vendorProfile.PayoutAccountID,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	captureRef := auth.CaptureReference
	if captureRef == "" {
		captureRef = auth.PaymentReference
	}
	order := &models.Order{
		ID:                    uuid.New(),
		JobID:                 job.ID,
		OfferID:               offer.ID,
		BuyerID:               job.BuyerID,
		VendorID:              offer.VendorID,
		GoodsAmountCents:      offer.GoodsAmountCents,
		LogisticsAmountCents:  offer.LogisticsAmountCents,
		TotalAmountCents:      total,
		Currency:              offer.Currency,
		PaymentReference:      auth.PaymentReference,
		CaptureReference:      captureRef,
		FulfillmentStatus:     enums.FulfillmentStatusInProgress,
		PayoutStatus:          enums.PayoutStatusHold,
		ExpectedGoodsOutDate:  job.ExpectedGoodsOutDate,
		ExpectedGoodsBackDate: job.ExpectedGoodsBackDate,
		AutoReleaseDays:       job.AutoReleaseDays,
		BuyerSnapshot:         profiles.Snapshot(buyerProfile),
		VendorSnapshot:        profiles.Snapshot(vendorProfile),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if auth.Status == ledger.PaymentStatusAuthorized || auth.Status == ledger.PaymentStatusCaptured {
		order.PaidAt = &now
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		accepted, err := s.offers.WithTx(tx).MarkAccepted(ctx, offer.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept offer")
		}
		if !accepted {
			return pkgerrors.New(pkgerrors.CodeConflict, "offer is no longer open")
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "offer already has an order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.recordLedgerEvent(ctx, tx, order, &input.Buyer, enums.LedgerEventTypeHold, total, s.ledger.Provider(), auth.PaymentReference, ledger.HoldKey(offer.ID), nil); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventOrderCreated, order, &input.Buyer, now, orderCreatedPayload(order, s.ledger.Provider())); err != nil {
			return err
		}
		if order.PaidAt != nil {
			if err := s.recordLedgerEvent(ctx, tx, order, nil, enums.LedgerEventTypePaymentSettled, total, s.ledger.Provider(), auth.PaymentReference, paidKey(order.ID), nil); err != nil {
				return err
			}
			return s.emit(ctx, tx, enums.EventOrderPaid, order, nil, now, orderPaidPayload(order, now))
		}
		return nil
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logError(s.withOffer(ctx, offer.ID), "hold placed but order not persisted", err)
		}
		return nil, err
	}
	return order, nil
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID, side string) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, side+" profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+side+" profile")
	}
	return profile, nil
}

func paidKey(orderID uuid.UUID) string {
	return "paid:" + orderID.String()
}

// MarkPaid records the processor's confirmation of the hold. Repeated
// confirmations are no-ops.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	reference := strings.TrimSpace(input.PaymentReference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	order, err := s.repo.FindByPaymentReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment reference")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment reference")
	}
	if order.PaidAt != nil {
		return order, nil
	}
	now := s.now()
	paidAt := input.PaidAt.UTC()
	if input.PaidAt.IsZero() || paidAt.After(now) {
		paidAt = now
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).CompareAndUpdate(ctx, order.ID, Guard{NullColumns: []string{"paid_at"}}, map[string]any{
			"paid_at":    paidAt,
			"updated_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return errLostRace
		}
		if err := s.recordLedgerEvent(ctx, tx, order, nil, enums.LedgerEventTypePaymentSettled, order.TotalAmountCents, s.ledger.Provider(), reference, paidKey(order.ID), nil); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventOrderPaid, order, nil, now, orderPaidPayload(order, paidAt))
	})
	if err != nil && !errors.Is(err, errLostRace) {
		return nil, err
	}
	return s.load(ctx, order.ID)
}

func (s *service) ReportDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := checkReportDelivery(order, actor.UserID, now); err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := Guard{
			Fulfillment: []enums.FulfillmentStatus{enums.FulfillmentStatusInProgress},
			NullColumns: []string{"delivery_reported_at"},
		}
		ok, err := s.repo.WithTx(tx).CompareAndUpdate(ctx, order.ID, guard, map[string]any{
			"fulfillment_status":   enums.FulfillmentStatusReported,
			"delivery_reported_at": now,
			"updated_at":           now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "report delivery")
		}
		if !ok {
			return errLostRace
		}
		reported := *order
		reported.DeliveryReportedAt = &now
		return s.emit(ctx, tx, enums.EventDeliveryReported, order, &actor, now, payloads.DeliveryReportedEvent{
			OrderID:       order.ID,
			BuyerID:       order.BuyerID,
			VendorID:      order.VendorID,
			ReportedAt:    now,
			AutoReleaseAt: s.policy.AutoReleaseAt(&reported),
		})
	})
	if errors.Is(err, errLostRace) {
		return nil, s.afterLostRace(ctx, order.ID, func(current *models.Order) error {
			return checkReportDelivery(current, actor.UserID, s.now())
		}, invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusReported))
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, order.ID)
}

func (s *service) ConfirmDelivery(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.policy.checkConfirmDelivery(order, actor.UserID, now); err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := Guard{
			Fulfillment:   []enums.FulfillmentStatus{enums.FulfillmentStatusReported},
			NoOpenDispute: true,
			NullColumns:   []string{"delivery_confirmed_at"},
		}
		ok, err := s.repo.WithTx(tx).CompareAndUpdate(ctx, order.ID, guard, map[string]any{
			"fulfillment_status":    enums.FulfillmentStatusConfirmed,
			"delivery_confirmed_at": now,
			"updated_at":            now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm delivery")
		}
		if !ok {
			return errLostRace
		}
		return s.emit(ctx, tx, enums.EventDeliveryConfirmed, order, &actor, now, deliveryConfirmedPayload(order, now, "buyer"))
	})
	if errors.Is(err, errLostRace) {
		return nil, s.afterLostRace(ctx, order.ID, func(current *models.Order) error {
			return s.policy.checkConfirmDelivery(current, actor.UserID, s.now())
		}, invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusConfirmed))
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, order.ID)
}

func (s *service) OpenDispute(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.policy.checkOpenDispute(order, actor.UserID, now, s.staleAfter); err != nil {
		return nil, err
	}
	var storedReason *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		storedReason = &trimmed
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := Guard{
			Fulfillment: []enums.FulfillmentStatus{enums.FulfillmentStatusInProgress, enums.FulfillmentStatusReported},
			Payout:      payoutIs(enums.PayoutStatusHold),
			NoIntent:    true,
			NullColumns: []string{"dispute_opened_at"},
		}
		ok, err := s.repo.WithTx(tx).CompareAndUpdate(ctx, order.ID, guard, map[string]any{
			"fulfillment_status": enums.FulfillmentStatusDisputed,
			"dispute_opened_at":  now,
			"dispute_reason":     storedReason,
			"updated_at":         now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open dispute")
		}
		if !ok {
			return errLostRace
		}
		return s.emit(ctx, tx, enums.EventDisputeOpened, order, &actor, now, payloads.DisputeOpenedEvent{
			OrderID:  order.ID,
			BuyerID:  order.BuyerID,
			VendorID: order.VendorID,
			Reason:   strings.TrimSpace(reason),
			OpenedAt: now,
		})
	})
	if errors.Is(err, errLostRace) {
		return nil, s.afterLostRace(ctx, order.ID, func(current *models.Order) error {
			return s.policy.checkOpenDispute(current, actor.UserID, s.now(), s.staleAfter)
		}, invalidTransition(order.FulfillmentStatus, enums.FulfillmentStatusDisputed))
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, order.ID)
}

func (s *service) Release(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	check := func(o *models.Order) error {
		_, err := s.policy.checkRelease(o, actor.UserID, s.now(), s.staleAfter)
		return err
	}
	who, err := s.policy.checkRelease(order, actor.UserID, s.now(), s.staleAfter)
	if err != nil {
		s.metrics.IncTransition(enums.PayoutIntentRelease.String(), "rejected")
		return nil, err
	}
	guard := Guard{Payout: payoutIs(enums.PayoutStatusHold), NoIntent: true, NoOpenDispute: true}
	if who == partyVendor {
		guard.Fulfillment = []enums.FulfillmentStatus{enums.FulfillmentStatusReported, enums.FulfillmentStatusConfirmed}
	}
	return s.runPayout(ctx, order, payoutRequest{
		intent: enums.PayoutIntentRelease,
		actor:  &actor,
		guard:  guard,
		check:  check,
	})
}

func (s *service) Refund(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	check := func(o *models.Order) error {
		return s.policy.checkRefund(o, actor.UserID, s.now(), s.staleAfter)
	}
	if err := check(order); err != nil {
		s.metrics.IncTransition(enums.PayoutIntentRefund.String(), "rejected")
		return nil, err
	}
	return s.runPayout(ctx, order, payoutRequest{
		intent: enums.PayoutIntentRefund,
		actor:  &actor,
		guard:  Guard{Payout: payoutIs(enums.PayoutStatusHold), NoIntent: true, NoOpenDispute: true},
		reason: strings.TrimSpace(reason),
		check:  check,
	})
}

func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*models.Order, error) {
	if !input.Actor.IsAdmin() {
		return nil, forbidden("dispute resolution requires an administrator")
	}
	order, err := s.load(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	refundCents := int64(0)
	if input.Outcome == enums.DisputeOutcomePartialRefund {
		refundCents = input.RefundAmountCents
	}
	check := func(o *models.Order) error {
		return checkResolveDispute(o, input.Outcome, refundCents, s.now(), s.staleAfter)
	}
	if err := check(order); err != nil {
		s.metrics.IncTransition(input.Outcome.Intent().String(), "rejected")
		return nil, err
	}
	return s.runPayout(ctx, order, payoutRequest{
		intent:      input.Outcome.Intent(),
		actor:       &input.Actor,
		guard:       Guard{Payout: payoutIs(enums.PayoutStatusHold), NoIntent: true, DisputeOpen: true},
		refundCents: refundCents,
		reason:      "dispute resolved: " + input.Outcome.String(),
		check:       check,
	})
}

func (s *service) EscalateRefund(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, forbidden("refund escalation requires an administrator")
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	check := func(o *models.Order) error {
		return checkEscalateRefund(o, s.now(), s.staleAfter)
	}
	if err := check(order); err != nil {
		s.metrics.IncTransition(enums.PayoutIntentEscalateRefund.String(), "rejected")
		return nil, err
	}
	return s.runPayout(ctx, order, payoutRequest{
		intent: enums.PayoutIntentEscalateRefund,
		actor:  &actor,
		guard:  Guard{Payout: payoutIs(enums.PayoutStatusPartialRefund), NoIntent: true},
		reason: "refund escalated",
		check:  check,
	})
}

// ResumeIntent re-drives a payout whose intent outlived the stale threshold.
// The ledger call reuses the original idempotency key.
func (s *service) ResumeIntent(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.resume(ctx, order)
}

// resume re-stamps the intent only if it still carries the timestamp read in
// order, so one of several concurrent resumers reaches the ledger.
func (s *service) resume(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.PayoutIntent == nil {
		return order, nil
	}
	intent := *order.PayoutIntent
	if !intentStale(order, s.now(), s.staleAfter) {
		return nil, alreadyResolved(fmt.Sprintf("payout %s already in progress", intent))
	}
	status := enums.PayoutStatusHold
	if intent == enums.PayoutIntentEscalateRefund {
		status = enums.PayoutStatusPartialRefund
	}
	return s.runPayout(ctx, order, payoutRequest{
		intent: intent,
		guard:  Guard{Payout: payoutIs(status)},
		check: func(o *models.Order) error {
			if o.PayoutIntent == nil {
				return alreadyResolved(fmt.Sprintf("payout already %s", o.PayoutStatus))
			}
			return nil
		},
	})
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer Actor) (*OrderView, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if partyOf(order, viewer.UserID) == partyNone && !viewer.IsAdmin() {
		return nil, forbidden("not a party to this order")
	}
	view := s.policy.View(order, viewer.UserID, s.now(), s.staleAfter)
	return &view, nil
}

// ViewOf renders an order returned by a mutation for the acting viewer.
func (s *service) ViewOf(order *models.Order, viewer Actor) OrderView {
	return s.policy.View(order, viewer.UserID, s.now(), s.staleAfter)
}

type payoutRequest struct {
	intent      enums.PayoutIntent
	actor       *Actor
	guard       Guard
	refundCents int64
	reason      string
	check       func(*models.Order) error
}

// runPayout reserves the intent, moves the money and finalizes the order.
// An ambiguous ledger failure keeps the intent so the reconciler can re-drive
// it; a definitive one clears it and leaves the payout on hold.
func (s *service) runPayout(ctx context.Context, order *models.Order, req payoutRequest) (*models.Order, error) {
	ctx = s.withOrder(ctx, order.ID, req.intent)
	label := req.intent.String()
	now := s.now()

	resumed := order.PayoutIntent != nil
	refundCents := req.refundCents
	reason := req.reason
	var ok bool
	var err error
	if resumed {
		if order.PayoutIntentAmount != nil {
			refundCents = *order.PayoutIntentAmount
		}
		if order.RefundReason != nil {
			reason = *order.RefundReason
		}
		guard := Guard{Payout: req.guard.Payout, IntentIs: intentIs(req.intent), IntentAt: order.PayoutIntentAt}
		ok, err = s.repo.CompareAndUpdate(ctx, order.ID, guard, map[string]any{
			"payout_intent_at": now,
			"updated_at":       now,
		})
	} else {
		updates := map[string]any{
			"payout_intent":    req.intent,
			"payout_intent_at": now,
			"updated_at":       now,
		}
		if refundCents > 0 {
			updates["payout_intent_amount_cents"] = refundCents
		}
		if reason != "" {
			updates["refund_reason"] = reason
		}
		ok, err = s.repo.CompareAndUpdate(ctx, order.ID, req.guard, updates)
	}
	if err != nil {
		s.metrics.IncTransition(label, "failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve payout")
	}
	if !ok {
		s.metrics.IncTransition(label, "rejected")
		return nil, s.afterLostRace(ctx, order.ID, req.check, alreadyResolved("payout changed concurrently"))
	}

	reference := order.CaptureReference
	if reference == "" {
		reference = order.PaymentReference
	}
	result, err := s.ledger.Execute(ctx, ledger.Movement{
		OrderID:     order.ID,
		Intent:      req.intent,
		Reference:   reference,
		Currency:    order.Currency,
		TotalCents:  order.TotalAmountCents,
		RefundCents: refundCents,
		Reason:      reason,
	})
	if err != nil {
		if ledger.IsAmbiguous(err) {
			s.metrics.IncTransition(label, "unknown")
			s.logError(ctx, "ledger outcome unknown; payout intent kept for reconciliation", err)
			return nil, err
		}
		s.metrics.IncTransition(label, "failed")
		if clearErr := s.clearIntent(ctx, order, req.intent); clearErr != nil {
			s.logError(ctx, "clear payout intent", clearErr)
		}
		return nil, err
	}

	for attempt := 0; attempt < finalizeAttempts; attempt++ {
		err = s.finalize(ctx, order.ID, req, result)
		if !errors.Is(err, errRetryFinalize) {
			break
		}
	}
	switch {
	case errors.Is(err, errLostRace):
		// another worker finalized the same movement
		s.metrics.IncTransition(label, "completed")
	case err != nil:
		s.metrics.IncTransition(label, "unknown")
		s.logError(ctx, "ledger movement applied but finalize failed; payout intent kept for reconciliation", err)
		return nil, err
	default:
		s.metrics.IncTransition(label, "completed")
		s.logInfo(ctx, "payout finalized")
	}
	return s.load(ctx, order.ID)
}

var errRetryFinalize = errors.New("fulfillment moved during finalize")

func (s *service) clearIntent(ctx context.Context, order *models.Order, intent enums.PayoutIntent) error {
	_, err := s.repo.CompareAndUpdate(ctx, order.ID, Guard{IntentIs: intentIs(intent)}, map[string]any{
		"payout_intent":              nil,
		"payout_intent_at":           nil,
		"payout_intent_amount_cents": nil,
		"refund_reason":              order.RefundReason,
		"updated_at":                 s.now(),
	})
	return err
}

// finalize applies the ledger result inside one transaction together with the
// ledger event and the outbox events.
func (s *service) finalize(ctx context.Context, orderID uuid.UUID, req payoutRequest, result *ledger.Result) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if current.PayoutIntent == nil || *current.PayoutIntent != req.intent {
			return errLostRace
		}
		now := s.now()
		updates, resolved, confirmed := finalizeUpdates(current, req.intent, result, now)
		guard := Guard{
			Payout:      req.guard.Payout,
			IntentIs:    intentIs(req.intent),
			Fulfillment: []enums.FulfillmentStatus{current.FulfillmentStatus},
		}
		ok, err := repo.CompareAndUpdate(ctx, orderID, guard, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize payout")
		}
		if !ok {
			return errRetryFinalize
		}

		amount := result.RefundedCents
		if req.intent == enums.PayoutIntentRelease {
			amount = result.ReleasedCents
		}
		meta := map[string]any{"intent": req.intent, "released_cents": result.ReleasedCents, "refunded_cents": result.RefundedCents}
		if err := s.recordLedgerEvent(ctx, tx, current, req.actor, ledgerEventType(req.intent), amount, result.Provider, result.Reference, result.IdempotencyKey, meta); err != nil {
			return err
		}

		if err := s.emit(ctx, tx, payoutEventType(req.intent), current, req.actor, now, payoutPayload(current, req.intent, updates, result, now)); err != nil {
			return err
		}
		if resolved {
			if err := s.emit(ctx, tx, enums.EventDisputeResolved, current, req.actor, now, payloads.DisputeResolvedEvent{
				OrderID:           current.ID,
				BuyerID:           current.BuyerID,
				VendorID:          current.VendorID,
				Outcome:           outcomeOf(req.intent),
				RefundAmountCents: result.RefundedCents,
				ResolvedAt:        now,
			}); err != nil {
				return err
			}
		}
		if confirmed {
			source := "release"
			if resolved {
				source = "dispute_resolution"
			}
			return s.emit(ctx, tx, enums.EventDeliveryConfirmed, current, req.actor, now, deliveryConfirmedPayload(current, now, source))
		}
		return nil
	})
}

// finalizeUpdates computes the terminal columns for intent. It also reports
// whether an open dispute gets resolved and whether a reported delivery gets
// materialized as confirmed.
func finalizeUpdates(order *models.Order, intent enums.PayoutIntent, result *ledger.Result, now time.Time) (map[string]any, bool, bool) {
	updates := map[string]any{
		"payout_status":              intent.TargetStatus(),
		"payout_intent":              nil,
		"payout_intent_at":           nil,
		"payout_intent_amount_cents": nil,
		"updated_at":                 now,
	}
	switch intent {
	case enums.PayoutIntentRelease:
		updates["payout_released_at"] = now
		updates["released_amount_cents"] = result.ReleasedCents
	case enums.PayoutIntentRefund:
		updates["refunded_at"] = now
		updates["refunded_amount_cents"] = result.RefundedCents
	case enums.PayoutIntentPartialRefund:
		updates["payout_released_at"] = now
		updates["released_amount_cents"] = result.ReleasedCents
		updates["refunded_at"] = now
		updates["refunded_amount_cents"] = result.RefundedCents
	case enums.PayoutIntentEscalateRefund:
		updates["payout_released_at"] = nil
		updates["refunded_at"] = now
		updates["released_amount_cents"] = int64(0)
		updates["refunded_amount_cents"] = order.TotalAmountCents
	}

	resolved := DisputeOpen(order)
	confirmed := false
	if resolved {
		updates["dispute_resolved_at"] = now
		updates["dispute_resolution"] = outcomeOf(intent)
		updates["fulfillment_status"] = enums.FulfillmentStatusConfirmed
		if order.DeliveryConfirmedAt == nil {
			updates["delivery_confirmed_at"] = now
			confirmed = true
		}
	} else if intent == enums.PayoutIntentRelease && order.FulfillmentStatus == enums.FulfillmentStatusReported {
		updates["fulfillment_status"] = enums.FulfillmentStatusConfirmed
		updates["delivery_confirmed_at"] = now
		confirmed = true
	}
	return updates, resolved, confirmed
}

func payoutPayload(order *models.Order, intent enums.PayoutIntent, updates map[string]any, result *ledger.Result, now time.Time) payloads.PayoutSettledEvent {
	released, _ := updates["released_amount_cents"].(int64)
	refunded, _ := updates["refunded_amount_cents"].(int64)
	return payloads.PayoutSettledEvent{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		VendorID:      order.VendorID,
		Intent:        intent,
		PayoutStatus:  intent.TargetStatus(),
		ReleasedCents: released,
		RefundedCents: refunded,
		Currency:      order.Currency,
		Provider:      result.Provider,
		Reference:     result.Reference,
		SettledAt:     now,
	}
}

func (s *service) recordLedgerEvent(ctx context.Context, tx *gorm.DB, order *models.Order, actor *Actor, eventType enums.LedgerEventType, amount int64, provider, reference, key string, meta map[string]any) error {
	input := ledger.RecordLedgerEventInput{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		VendorID:       order.VendorID,
		Type:           eventType,
		AmountCents:    amount,
		Currency:       order.Currency,
		Provider:       provider,
		Reference:      reference,
		IdempotencyKey: key,
	}
	if actor != nil {
		id := actor.UserID
		input.ActorUserID = &id
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		input.Metadata = raw
	}
	if _, err := s.ledgerEvents.WithTx(tx).RecordEvent(ctx, input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger event")
	}
	return nil
}

func (s *service) withOrder(ctx context.Context, orderID uuid.UUID, intent enums.PayoutIntent) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(s.logg.WithOrderID(ctx, orderID.String()), "intent", intent.String())
}

func (s *service) withOffer(ctx context.Context, offerID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, "offer_id", offerID.String())
}

func (s *service) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
