package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/api/middleware"
	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	"github.com/angelmondragon/surfacemarket-backend/api/validators"
	"github.com/angelmondragon/surfacemarket-backend/internal/feed"
	internalorders "github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/pagination"
)

type acceptOfferRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=255"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=2000"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// Feed returns the caller's orders grouped into feed buckets.
func Feed(svc feed.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "feed service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query, err := parseFeedQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.ViewerID = actor.UserID

		page, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseFeedQuery(r *http.Request) (feed.Query, error) {
	q := r.URL.Query()

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return feed.Query{}, err
	}
	query := feed.Query{
		Pagination: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(q.Get("cursor")),
		},
	}

	switch side := internalorders.Side(strings.TrimSpace(q.Get("side"))); side {
	case internalorders.SideAll, internalorders.SidePlaced, internalorders.SideFulfilled:
		query.Side = side
	default:
		return feed.Query{}, pkgerrors.New(pkgerrors.CodeValidation, "side must be placed or fulfilled")
	}

	if raw := strings.TrimSpace(q.Get("bucket")); raw != "" {
		bucket, err := enums.ParseFeedBucket(raw)
		if err != nil {
			return feed.Query{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bucket")
		}
		query.Bucket = feed.Bucket(bucket)
	}
	return query, nil
}

// Detail returns one order as seen by the caller.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AcceptOffer turns the offer in the path into an order paid by the caller.
func AcceptOffer(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := parseUUIDParam(r, "offerId", "offer id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload acceptOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AcceptOffer(r.Context(), internalorders.AcceptOfferInput{
			OfferID:       offerID,
			Buyer:         actor,
			PaymentMethod: payload.PaymentMethod,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, svc.ViewOf(order, actor))
	}
}

// ReportDelivered records the vendor's claim that the goods are back.
func ReportDelivered(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.ReportDelivery(r.Context(), orderID, actor)
	})
}

// ConfirmDelivery records the buyer's acceptance of the delivery.
func ConfirmDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.ConfirmDelivery(r.Context(), orderID, actor)
	})
}

// OpenDispute freezes the payout while the buyer's complaint is reviewed.
func OpenDispute(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		var payload reasonRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		reason := validators.SanitizeString(payload.Reason, 2000)
		if reason == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
		}
		return svc.OpenDispute(r.Context(), orderID, actor, reason)
	})
}

// Release pays the held funds out to the vendor.
func Release(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		return svc.Release(r.Context(), orderID, actor)
	})
}

// Refund returns the held funds to the buyer.
func Refund(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
		var payload refundRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Refund(r.Context(), orderID, actor, validators.SanitizeString(payload.Reason, 2000))
	})
}

type transitionFunc func(r *http.Request, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)

// transition runs one state change on the order in the path and responds
// with the order as the caller now sees it.
func transition(svc internalorders.Service, logg *logger.Logger, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := fn(r.WithContext(ctx), orderID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.ViewOf(order, actor))
	}
}

func actorFromRequest(r *http.Request) (internalorders.Actor, error) {
	rawUserID := middleware.UserIDFromContext(r.Context())
	if rawUserID == "" {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		role = enums.UserRoleMember
	}
	return internalorders.Actor{UserID: userID, Role: role}, nil
}

func parseUUIDParam(r *http.Request, param, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}
