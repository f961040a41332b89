package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/ledger"
	"github.com/angelmondragon/surfacemarket-backend/internal/offers"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memoryRepo is an in-memory orders store whose CompareAndUpdate honors the
// guard atomically, like the conditional UPDATE in Postgres.
type memoryRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	writes int
}

func newMemoryRepo(orders ...*models.Order) *memoryRepo {
	r := &memoryRepo{orders: make(map[uuid.UUID]*models.Order)}
	for _, o := range orders {
		clone := *o
		r.orders[o.ID] = &clone
	}
	return r
}

func (r *memoryRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *memoryRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.OfferID == order.OfferID {
			return fmt.Errorf("UNIQUE constraint failed: orders.offer_id")
		}
	}
	clone := *order
	r.orders[order.ID] = &clone
	r.writes++
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *o
	return &clone, nil
}

func (r *memoryRepo) FindByOfferID(ctx context.Context, offerID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OfferID == offerID {
			clone := *o
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentReference == reference || o.CaptureReference == reference {
			clone := *o
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepo) ListForViewer(ctx context.Context, viewerID uuid.UUID, side Side) ([]models.Order, error) {
	return nil, nil
}

func (r *memoryRepo) ListStaleIntents(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (r *memoryRepo) CompareAndUpdate(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || !guardMatches(o, guard) {
		return false, nil
	}
	if err := applyUpdates(o, updates); err != nil {
		return false, err
	}
	r.writes++
	return true, nil
}

func (r *memoryRepo) MarkReviewed(ctx context.Context, id uuid.UUID, role enums.ReviewRole) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	flag := &o.BuyerReviewed
	if role == enums.ReviewRoleVendorToBuyer {
		flag = &o.VendorReviewed
	}
	if *flag {
		return false, nil
	}
	*flag = true
	r.writes++
	return true, nil
}

func (r *memoryRepo) snapshot(id uuid.UUID) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

func guardMatches(o *models.Order, g Guard) bool {
	if len(g.Fulfillment) > 0 {
		found := false
		for _, status := range g.Fulfillment {
			if o.FulfillmentStatus == status {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if g.Payout != nil && o.PayoutStatus != *g.Payout {
		return false
	}
	if g.IntentIs != nil && (o.PayoutIntent == nil || *o.PayoutIntent != *g.IntentIs) {
		return false
	}
	if g.IntentAt != nil && (o.PayoutIntentAt == nil || !o.PayoutIntentAt.Equal(*g.IntentAt)) {
		return false
	}
	if g.NoIntent && o.PayoutIntent != nil {
		return false
	}
	if g.NoOpenDispute && DisputeOpen(o) {
		return false
	}
	if g.DisputeOpen && !DisputeOpen(o) {
		return false
	}
	for _, col := range g.NullColumns {
		var set bool
		switch col {
		case "paid_at":
			set = o.PaidAt != nil
		case "delivery_reported_at":
			set = o.DeliveryReportedAt != nil
		case "delivery_confirmed_at":
			set = o.DeliveryConfirmedAt != nil
		case "dispute_opened_at":
			set = o.DisputeOpenedAt != nil
		case "dispute_resolved_at":
			set = o.DisputeResolvedAt != nil
		case "payout_released_at":
			set = o.PayoutReleasedAt != nil
		case "refunded_at":
			set = o.RefundedAt != nil
		}
		if set {
			return false
		}
	}
	return true
}

func applyUpdates(o *models.Order, updates map[string]any) error {
	for col, v := range updates {
		switch col {
		case "fulfillment_status":
			o.FulfillmentStatus = v.(enums.FulfillmentStatus)
		case "payout_status":
			o.PayoutStatus = v.(enums.PayoutStatus)
		case "paid_at":
			o.PaidAt = timeValue(v)
		case "delivery_reported_at":
			o.DeliveryReportedAt = timeValue(v)
		case "delivery_confirmed_at":
			o.DeliveryConfirmedAt = timeValue(v)
		case "dispute_opened_at":
			o.DisputeOpenedAt = timeValue(v)
		case "dispute_resolved_at":
			o.DisputeResolvedAt = timeValue(v)
		case "payout_released_at":
			o.PayoutReleasedAt = timeValue(v)
		case "refunded_at":
			o.RefundedAt = timeValue(v)
		case "payout_intent_at":
			o.PayoutIntentAt = timeValue(v)
		case "updated_at":
			if t := timeValue(v); t != nil {
				o.UpdatedAt = *t
			}
		case "dispute_reason":
			o.DisputeReason = stringValue(v)
		case "refund_reason":
			o.RefundReason = stringValue(v)
		case "dispute_resolution":
			outcome := v.(enums.DisputeOutcome)
			o.DisputeResolution = &outcome
		case "payout_intent":
			if v == nil {
				o.PayoutIntent = nil
			} else {
				intent := v.(enums.PayoutIntent)
				o.PayoutIntent = &intent
			}
		case "payout_intent_amount_cents":
			o.PayoutIntentAmount = int64Value(v)
		case "released_amount_cents":
			o.ReleasedAmountCents = int64Value(v)
		case "refunded_amount_cents":
			o.RefundedAmountCents = int64Value(v)
		default:
			return fmt.Errorf("unexpected column %s", col)
		}
	}
	return nil
}

func timeValue(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}

func stringValue(v any) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		return s
	default:
		return nil
	}
}

func int64Value(v any) *int64 {
	switch n := v.(type) {
	case int64:
		return &n
	case *int64:
		return n
	default:
		return nil
	}
}

type stubOffers struct {
	mu     sync.Mutex
	offers map[uuid.UUID]*models.Offer
}

func (s *stubOffers) WithTx(tx *gorm.DB) offers.Repository { return s }

func (s *stubOffers) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *stubOffers) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Offer, error) {
	return nil, nil
}

func (s *stubOffers) MarkAccepted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok || o.Status != enums.OfferStatusOpen {
		return false, nil
	}
	o.Status = enums.OfferStatusAccepted
	o.AcceptedAt = &at
	return true, nil
}

type stubJobs struct {
	jobs map[uuid.UUID]*models.Job
}

func (s *stubJobs) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

type stubProfiles struct {
	profiles map[uuid.UUID]*models.Profile
}

func (s *stubProfiles) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

// stubLedger counts movements per intent. gate, when set, blocks Execute
// until the test closes it.
type stubLedger struct {
	mu         sync.Mutex
	holds      int
	executions map[enums.PayoutIntent]int
	movements  []ledger.Movement
	holdStatus ledger.PaymentStatus
	err        error
	gate       chan struct{}
	entered    chan struct{}
}

func newStubLedger() *stubLedger {
	return &stubLedger{executions: make(map[enums.PayoutIntent]int), holdStatus: ledger.PaymentStatusPending}
}

func (l *stubLedger) Provider() string { return "stub" }

func (l *stubLedger) Hold(ctx context.Context, req ledger.AuthorizeRequest) (*ledger.Authorization, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holds++
	ref := "pi_" + req.OfferID.String()
	return &ledger.Authorization{PaymentReference: ref, CaptureReference: ref, Status: l.holdStatus}, nil
}

func (l *stubLedger) Execute(ctx context.Context, mv ledger.Movement) (*ledger.Result, error) {
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executions[mv.Intent]++
	l.movements = append(l.movements, mv)
	if l.err != nil {
		return nil, l.err
	}
	result := &ledger.Result{Provider: "stub", Reference: mv.Reference, IdempotencyKey: ledger.MovementKey(mv.Intent, mv.OrderID)}
	switch mv.Intent {
	case enums.PayoutIntentRelease:
		result.ReleasedCents = mv.TotalCents
	case enums.PayoutIntentRefund:
		result.RefundedCents = mv.TotalCents
	case enums.PayoutIntentPartialRefund:
		result.RefundedCents = mv.RefundCents
		result.ReleasedCents = mv.TotalCents - mv.RefundCents
	case enums.PayoutIntentEscalateRefund:
		result.RefundedCents = mv.TotalCents
	}
	return result, nil
}

func (l *stubLedger) calls(intent enums.PayoutIntent) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executions[intent]
}

func (l *stubLedger) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.executions {
		n += c
	}
	return n
}

type stubLedgerEvents struct {
	mu     sync.Mutex
	events []ledger.RecordLedgerEventInput
}

func (s *stubLedgerEvents) WithTx(tx *gorm.DB) ledger.Service { return s }

func (s *stubLedgerEvents) RecordEvent(ctx context.Context, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.IdempotencyKey == input.IdempotencyKey {
			return &models.LedgerEvent{IdempotencyKey: input.IdempotencyKey}, nil
		}
	}
	s.events = append(s.events, input)
	return &models.LedgerEvent{ID: uuid.New(), IdempotencyKey: input.IdempotencyKey, Type: input.Type, AmountCents: input.AmountCents}, nil
}

func (s *stubLedgerEvents) ListEvents(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return nil, nil
}

func (s *stubLedgerEvents) types() []enums.LedgerEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]enums.LedgerEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type stubOutboxPublisher struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (s *stubOutboxPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutboxPublisher) count(eventType enums.OutboxEventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// testClock is a settable wall clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
