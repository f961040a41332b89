package reviews

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type memoryReviews struct {
	mu   sync.Mutex
	rows []models.OrderReview
}

func (r *memoryReviews) WithTx(tx *gorm.DB) Repository { return r }

func (r *memoryReviews) Create(ctx context.Context, review *models.OrderReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.OrderID == review.OrderID && row.Role == review.Role {
			return fmt.Errorf("UNIQUE constraint failed: order_reviews.order_id, order_reviews.role")
		}
	}
	r.rows = append(r.rows, *review)
	return nil
}

func (r *memoryReviews) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderReview
	for _, row := range r.rows {
		if row.OrderID == orderID {
			out = append(out, row)
		}
	}
	return out, nil
}

// stubOrders implements the parts of orders.Repository reviews touch.
type stubOrders struct {
	orders.Repository
	mu    sync.Mutex
	order *models.Order
}

func (s *stubOrders) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrders) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil || s.order.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *s.order
	return &clone, nil
}

func (s *stubOrders) MarkReviewed(ctx context.Context, id uuid.UUID, role enums.ReviewRole) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := &s.order.BuyerReviewed
	if role == enums.ReviewRoleVendorToBuyer {
		flag = &s.order.VendorReviewed
	}
	if *flag {
		return false, nil
	}
	*flag = true
	return true, nil
}

type stubProfiles struct {
	profiles.Repository
	ratings map[uuid.UUID][]int
}

func (s *stubProfiles) WithTx(tx *gorm.DB) profiles.Repository { return s }

func (s *stubProfiles) ApplyRating(ctx context.Context, id uuid.UUID, stars int) error {
	s.ratings[id] = append(s.ratings[id], stars)
	return nil
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type reviewHarness struct {
	svc      Service
	reviews  *memoryReviews
	orders   *stubOrders
	profiles *stubProfiles
	outbox   *stubOutbox
	order    *models.Order
}

func newReviewHarness(t *testing.T, payout enums.PayoutStatus, fulfillment enums.FulfillmentStatus) *reviewHarness {
	t.Helper()
	paidAt := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	reportedAt := time.Date(2026, time.March, 6, 10, 0, 0, 0, time.UTC)
	order := &models.Order{
		ID:                    uuid.New(),
		BuyerID:               uuid.New(),
		VendorID:              uuid.New(),
		TotalAmountCents:      50000,
		PaidAt:                &paidAt,
		DeliveryReportedAt:    &reportedAt,
		FulfillmentStatus:     fulfillment,
		PayoutStatus:          payout,
		ExpectedGoodsBackDate: time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC),
	}
	h := &reviewHarness{
		reviews:  &memoryReviews{},
		orders:   &stubOrders{order: order},
		profiles: &stubProfiles{ratings: map[uuid.UUID][]int{}},
		outbox:   &stubOutbox{},
		order:    order,
	}
	svc, err := NewService(ServiceParams{
		Repo:              h.reviews,
		Orders:            h.orders,
		Profiles:          h.profiles,
		Outbox:            h.outbox,
		TransactionRunner: stubTxRunner{},
		Policy:            orders.WindowPolicy{AutoReleaseDays: 3},
		Clock:             func() time.Time { return time.Date(2026, time.March, 7, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func TestSubmitReviewBothDirections(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusReleased, enums.FulfillmentStatusConfirmed)
	ctx := context.Background()

	review, err := h.svc.Submit(ctx, SubmitInput{OrderID: h.order.ID, AuthorID: h.order.BuyerID, Role: enums.ReviewRoleBuyerToVendor, Stars: 5, Comment: "  sauber eloxiert  "})
	if err != nil {
		t.Fatalf("buyer review: %v", err)
	}
	if review.RevieweeID != h.order.VendorID || review.Comment != "sauber eloxiert" {
		t.Fatalf("unexpected review %+v", review)
	}

	if _, err := h.svc.Submit(ctx, SubmitInput{OrderID: h.order.ID, AuthorID: h.order.VendorID, Role: enums.ReviewRoleVendorToBuyer, Stars: 4, Comment: "pünktlich bezahlt"}); err != nil {
		t.Fatalf("vendor review: %v", err)
	}

	if !h.orders.order.BuyerReviewed || !h.orders.order.VendorReviewed {
		t.Fatalf("expected both reviewed flags set")
	}
	if got := h.profiles.ratings[h.order.VendorID]; len(got) != 1 || got[0] != 5 {
		t.Fatalf("unexpected vendor ratings %v", got)
	}
	if got := h.profiles.ratings[h.order.BuyerID]; len(got) != 1 || got[0] != 4 {
		t.Fatalf("unexpected buyer ratings %v", got)
	}
	if len(h.outbox.events) != 2 || h.outbox.events[0].EventType != enums.EventReviewSubmitted || h.outbox.events[0].AggregateType != enums.AggregateReview {
		t.Fatalf("unexpected events %+v", h.outbox.events)
	}

	listed, err := h.svc.ListForOrder(ctx, h.order.ID, h.order.VendorID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected two reviews, got %d", len(listed))
	}
	_, err = h.svc.ListForOrder(ctx, h.order.ID, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
}

func TestSubmitReviewDuplicate(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusRefunded, enums.FulfillmentStatusConfirmed)
	input := SubmitInput{OrderID: h.order.ID, AuthorID: h.order.BuyerID, Role: enums.ReviewRoleBuyerToVendor, Stars: 2, Comment: "late"}
	if _, err := h.svc.Submit(context.Background(), input); err != nil {
		t.Fatalf("first review: %v", err)
	}
	_, err := h.svc.Submit(context.Background(), input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyReviewed) {
		t.Fatalf("expected already reviewed, got %v", err)
	}
	if len(h.profiles.ratings[h.order.VendorID]) != 1 || len(h.outbox.events) != 1 {
		t.Fatalf("duplicate must not touch ratings or events")
	}
}

func TestSubmitReviewStoreUniquenessWins(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusReleased, enums.FulfillmentStatusConfirmed)
	// a concurrent submission already inserted the row but the flag read was stale
	h.reviews.rows = append(h.reviews.rows, models.OrderReview{ID: uuid.New(), OrderID: h.order.ID, Role: enums.ReviewRoleBuyerToVendor})

	_, err := h.svc.Submit(context.Background(), SubmitInput{OrderID: h.order.ID, AuthorID: h.order.BuyerID, Role: enums.ReviewRoleBuyerToVendor, Stars: 5, Comment: "ok"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyReviewed) {
		t.Fatalf("expected already reviewed, got %v", err)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusReleased, enums.FulfillmentStatusConfirmed)
	cases := []struct {
		name  string
		input SubmitInput
	}{
		{name: "stars too high", input: SubmitInput{Role: enums.ReviewRoleBuyerToVendor, Stars: 6, Comment: "great"}},
		{name: "stars zero", input: SubmitInput{Role: enums.ReviewRoleBuyerToVendor, Stars: 0, Comment: "great"}},
		{name: "blank comment", input: SubmitInput{Role: enums.ReviewRoleBuyerToVendor, Stars: 4, Comment: "   "}},
		{name: "long comment", input: SubmitInput{Role: enums.ReviewRoleBuyerToVendor, Stars: 4, Comment: strings.Repeat("x", maxCommentLength+1)}},
		{name: "unknown role", input: SubmitInput{Role: "peer", Stars: 4, Comment: "fine"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.input.OrderID = h.order.ID
			tc.input.AuthorID = h.order.BuyerID
			_, err := h.svc.Submit(context.Background(), tc.input)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(h.reviews.rows) != 0 {
		t.Fatalf("invalid input must not persist")
	}
}

func TestSubmitReviewGate(t *testing.T) {
	cases := []struct {
		name        string
		payout      enums.PayoutStatus
		fulfillment enums.FulfillmentStatus
		author      func(o *models.Order) uuid.UUID
		role        enums.ReviewRole
		code        pkgerrors.Code
	}{
		{name: "payout on hold", payout: enums.PayoutStatusHold, fulfillment: enums.FulfillmentStatusConfirmed, author: func(o *models.Order) uuid.UUID { return o.BuyerID }, role: enums.ReviewRoleBuyerToVendor, code: pkgerrors.CodeForbidden},
		{name: "delivery in progress", payout: enums.PayoutStatusRefunded, fulfillment: enums.FulfillmentStatusInProgress, author: func(o *models.Order) uuid.UUID { return o.BuyerID }, role: enums.ReviewRoleBuyerToVendor, code: pkgerrors.CodeForbidden},
		{name: "wrong author for role", payout: enums.PayoutStatusReleased, fulfillment: enums.FulfillmentStatusConfirmed, author: func(o *models.Order) uuid.UUID { return o.VendorID }, role: enums.ReviewRoleBuyerToVendor, code: pkgerrors.CodeForbidden},
		{name: "stranger", payout: enums.PayoutStatusReleased, fulfillment: enums.FulfillmentStatusConfirmed, author: func(o *models.Order) uuid.UUID { return uuid.New() }, role: enums.ReviewRoleVendorToBuyer, code: pkgerrors.CodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newReviewHarness(t, tc.payout, tc.fulfillment)
			_, err := h.svc.Submit(context.Background(), SubmitInput{OrderID: h.order.ID, AuthorID: tc.author(h.order), Role: tc.role, Stars: 3, Comment: "ok"})
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestSubmitReviewOnReleasedReportedOrder(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusReleased, enums.FulfillmentStatusReported)
	if _, err := h.svc.Submit(context.Background(), SubmitInput{OrderID: h.order.ID, AuthorID: h.order.VendorID, Role: enums.ReviewRoleVendorToBuyer, Stars: 5, Comment: "gern wieder"}); err != nil {
		t.Fatalf("released orders count as confirmed: %v", err)
	}
}

func TestSubmitReviewMissingOrder(t *testing.T) {
	h := newReviewHarness(t, enums.PayoutStatusReleased, enums.FulfillmentStatusConfirmed)
	_, err := h.svc.Submit(context.Background(), SubmitInput{OrderID: uuid.New(), AuthorID: h.order.BuyerID, Role: enums.ReviewRoleBuyerToVendor, Stars: 3, Comment: "ok"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
