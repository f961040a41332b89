package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCommentLength = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SubmitInput is one party's rating of the other.
type SubmitInput struct {
	OrderID  uuid.UUID
	AuthorID uuid.UUID
	Role     enums.ReviewRole
	Stars    int
	Comment  string
}

// Service gates and records reviews.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.OrderReview, error)
	ListForOrder(ctx context.Context, orderID, viewerID uuid.UUID) ([]models.OrderReview, error)
}

// ServiceParams wires the review service.
type ServiceParams struct {
	Repo              Repository
	Orders            orders.Repository
	Profiles          profiles.Repository
	Outbox            outboxPublisher
	TransactionRunner txRunner
	Policy            orders.WindowPolicy
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo     Repository
	orders   orders.Repository
	profiles profiles.Repository
	outbox   outboxPublisher
	tx       txRunner
	policy   orders.WindowPolicy
	logg     *logger.Logger
	clock    func() time.Time
}

// NewService builds a review service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviews repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders repository required")
	}
	if params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profiles repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox publisher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		profiles: params.Profiles,
		outbox:   params.Outbox,
		tx:       params.TransactionRunner,
		policy:   params.Policy,
		logg:     params.Logger,
		clock:    clock,
	}, nil
}

func validateInput(input SubmitInput) (string, error) {
	if input.OrderID == uuid.Nil || input.AuthorID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order and author are required")
	}
	if !input.Role.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer_to_vendor or vendor_to_buyer")
	}
	if input.Stars < 1 || input.Stars > 5 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stars must be between 1 and 5").
			WithDetails(map[string]any{"stars": input.Stars})
	}
	comment := strings.TrimSpace(input.Comment)
	if comment == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "comment is required")
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
	}
	return comment, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func alreadyReviewed(role enums.ReviewRole) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyReviewed, fmt.Sprintf("%s review already submitted", role))
}

// Submit records the review, flags the order and folds the stars into the
// reviewee's rating in one transaction.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.OrderReview, error) {
	comment, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	if err := s.policy.CheckReview(order, input.AuthorID, input.Role, now); err != nil {
		return nil, err
	}

	reviewee := order.VendorID
	if input.Role == enums.ReviewRoleVendorToBuyer {
		reviewee = order.BuyerID
	}
	review := &models.OrderReview{
		ID:         uuid.New(),
		OrderID:    order.ID,
		Role:       input.Role,
		AuthorID:   input.AuthorID,
		RevieweeID: reviewee,
		Stars:      input.Stars,
		Comment:    comment,
		CreatedAt:  now,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "") {
				return alreadyReviewed(input.Role)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert review")
		}
		marked, err := s.orders.WithTx(tx).MarkReviewed(ctx, order.ID, input.Role)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order reviewed")
		}
		if !marked {
			return alreadyReviewed(input.Role)
		}
		if err := s.profiles.WithTx(tx).ApplyRating(ctx, reviewee, input.Stars); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reviewee profile not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply rating")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventReviewSubmitted,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: input.AuthorID, Role: input.Role.String()},
			Data: payloads.ReviewSubmittedEvent{
				ReviewID:   review.ID,
				OrderID:    order.ID,
				Role:       input.Role,
				AuthorID:   input.AuthorID,
				RevieweeID: reviewee,
				Stars:      input.Stars,
				CreatedAt:  now,
			},
			Version:    1,
			OccurredAt: now,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit review_submitted")
		}
		return nil
	})
	if err != nil {
		if s.logg != nil && !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyReviewed) {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "submit review failed", err)
		}
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID.String()), "role", input.Role.String()), "review submitted")
	}
	return review, nil
}

// ListForOrder returns the reviews of an order to one of its parties.
func (s *service) ListForOrder(ctx context.Context, orderID, viewerID uuid.UUID) ([]models.OrderReview, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if viewerID != order.BuyerID && viewerID != order.VendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a party to this order")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	return rows, nil
}
