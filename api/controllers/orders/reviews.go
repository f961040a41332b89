package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/api/responses"
	"github.com/angelmondragon/surfacemarket-backend/api/validators"
	"github.com/angelmondragon/surfacemarket-backend/internal/reviews"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

type submitReviewRequest struct {
	Role    string `json:"role" validate:"required,oneof=buyer_to_vendor vendor_to_buyer"`
	Stars   int    `json:"stars" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ReviewResponse is the public shape of an order review.
type ReviewResponse struct {
	ID         uuid.UUID        `json:"id"`
	OrderID    uuid.UUID        `json:"order_id"`
	Role       enums.ReviewRole `json:"role"`
	AuthorID   uuid.UUID        `json:"author_id"`
	RevieweeID uuid.UUID        `json:"reviewee_id"`
	Stars      int              `json:"stars"`
	Comment    string           `json:"comment"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toReviewResponse(review models.OrderReview) ReviewResponse {
	return ReviewResponse{
		ID:         review.ID,
		OrderID:    review.OrderID,
		Role:       review.Role,
		AuthorID:   review.AuthorID,
		RevieweeID: review.RevieweeID,
		Stars:      review.Stars,
		Comment:    review.Comment,
		CreatedAt:  review.CreatedAt,
	}
}

// SubmitReview records the caller's rating of the other party.
func SubmitReview(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reviews service unavailable"))
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

		var payload submitReviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := enums.ParseReviewRole(payload.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid review role"))
			return
		}

		review, err := svc.Submit(r.Context(), reviews.SubmitInput{
			OrderID:  orderID,
			AuthorID: actor.UserID,
			Role:     role,
			Stars:    payload.Stars,
			Comment:  payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toReviewResponse(*review))
	}
}

// ListReviews returns the reviews of an order the caller is party to.
func ListReviews(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reviews service unavailable"))
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

		list, err := svc.ListForOrder(r.Context(), orderID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]ReviewResponse, 0, len(list))
		for _, review := range list {
			out = append(out, toReviewResponse(review))
		}
		responses.WriteSuccess(w, out)
	}
}
