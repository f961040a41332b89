package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/pagination"

	"github.com/angelmondragon/surfacemarket-backend/api/middleware"
	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	"github.com/angelmondragon/surfacemarket-backend/api/validators"
)

type adminOrdersService interface {
	ResolveDispute(ctx context.Context, input internalorders.ResolveDisputeInput) (*models.Order, error)
	EscalateRefund(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)
	ViewOf(order *models.Order, viewer internalorders.Actor) internalorders.OrderView
}

type dlqLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

type resolveDisputeRequest struct {
	Outcome           string `json:"outcome" validate:"required,oneof=release refund partial_refund"`
	RefundAmountCents int64  `json:"refund_amount_cents" validate:"min=0"`
}

// AdminResolveDispute settles a disputed order with the outcome chosen by support.
func AdminResolveDispute(svc adminOrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, orderID, err := adminOrderRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := enums.ParseDisputeOutcome(payload.Outcome)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid outcome"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.ResolveDispute(ctx, internalorders.ResolveDisputeInput{
			OrderID:           orderID,
			Actor:             actor,
			Outcome:           outcome,
			RefundAmountCents: payload.RefundAmountCents,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.ViewOf(order, actor))
	}
}

// AdminEscalateRefund refunds the remainder of a partially refunded order.
func AdminEscalateRefund(svc adminOrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, orderID, err := adminOrderRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.EscalateRefund(ctx, orderID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.ViewOf(order, actor))
	}
}

// AdminOutboxDLQ lists the most recent events the publisher gave up on.
func AdminOutboxDLQ(repo dlqLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox dlq unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := repo.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox dlq"))
			return
		}
		out := make([]dlqEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, dlqEntryResponse{
				ID:            entry.ID,
				EventID:       entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				ErrorReason:   entry.ErrorReason,
				ErrorMessage:  entry.ErrorMessage,
				AttemptCount:  entry.AttemptCount,
				FailedAt:      entry.FailedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, out)
	}
}

type dlqEntryResponse struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"error_reason"`
	ErrorMessage  *string                    `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
}

func adminOrderRequest(r *http.Request) (internalorders.Actor, uuid.UUID, error) {
	rawUserID := middleware.UserIDFromContext(r.Context())
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return internalorders.Actor{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil || role != enums.UserRoleAdmin {
		return internalorders.Actor{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}

	rawOrderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if rawOrderID == "" {
		return internalorders.Actor{}, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return internalorders.Actor{}, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return internalorders.Actor{UserID: userID, Role: role}, orderID, nil
}
