package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/surfacemarket-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/surfacemarket-backend/api/controllers/analytics"
	ordercontrollers "github.com/angelmondragon/surfacemarket-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/surfacemarket-backend/api/controllers/webhooks"
	"github.com/angelmondragon/surfacemarket-backend/api/middleware"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics"
	"github.com/angelmondragon/surfacemarket-backend/internal/feed"
	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/reviews"
	squarewebhook "github.com/angelmondragon/surfacemarket-backend/internal/webhooks/square"
	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/surfacemarket-backend/pkg/redis"
	"github.com/stripe/stripe-go/v84"
)

// RedisStore is the subset of the Redis client the HTTP layer relies on.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeSecret interface {
	SigningSecret() string
}

type squareVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

type stripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type squareEventHandler interface {
	HandleEvent(ctx context.Context, event *squarewebhook.SquareWebhookEvent) error
}

type dlqLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

// StripeWebhook bundles what the Stripe webhook route needs. A nil Service
// leaves the route unmounted.
type StripeWebhook struct {
	Service stripeEventHandler
	Client  stripeSecret
	Guard   webhookGuard
}

// SquareWebhook bundles what the Square webhook route needs. A nil Service
// leaves the route unmounted.
type SquareWebhook struct {
	Service squareEventHandler
	Client  squareVerifier
	Guard   webhookGuard
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	DB        controllers.Pinger
	Redis     RedisStore
	BigQuery  controllers.Pinger
	Orders    orders.Service
	Feed      feed.Service
	Reviews   reviews.Service
	Analytics analytics.Service
	OutboxDLQ dlqLister
	Stripe    StripeWebhook
	Square    SquareWebhook
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	var redisPinger controllers.Pinger
	var idempotencyStore pkgredis.IdempotencyStore
	var rateStore interface {
		IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	}
	if deps.Redis != nil {
		redisPinger = deps.Redis
		idempotencyStore = deps.Redis
		rateStore = deps.Redis
	}

	mutationPolicy := middleware.RateLimitPolicy{
		Name:    "orders",
		Window:  cfg.RateLimit.Window,
		PerIP:   cfg.RateLimit.IPLimit,
		PerUser: cfg.RateLimit.UserLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "postgres", Pinger: deps.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: redisPinger},
			controllers.ReadinessCheck{Name: "bigquery", Pinger: deps.BigQuery},
		))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.Stripe.Service != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Stripe.Service, deps.Stripe.Client, deps.Stripe.Guard, logg))
		}
		if deps.Square.Service != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(deps.Square.Service, deps.Square.Client, deps.Square.Guard, logg))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, middleware.ReplayWindows{
			Standard: cfg.Eventing.HTTPIdempotencyTTL,
			Payment:  cfg.Eventing.HTTPPaymentIdempotencyTTL,
		}, logg))

		limited := r.With(middleware.RateLimit(mutationPolicy, rateStore, logg))

		limited.Post("/offers/{offerId}/accept", ordercontrollers.AcceptOffer(deps.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.Feed(deps.Feed, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Get("/{orderId}/reviews", ordercontrollers.ListReviews(deps.Reviews, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(mutationPolicy, rateStore, logg))
				r.Post("/{orderId}/report-delivered", ordercontrollers.ReportDelivered(deps.Orders, logg))
				r.Post("/{orderId}/confirm-delivery", ordercontrollers.ConfirmDelivery(deps.Orders, logg))
				r.Post("/{orderId}/dispute", ordercontrollers.OpenDispute(deps.Orders, logg))
				r.Post("/{orderId}/release", ordercontrollers.Release(deps.Orders, logg))
				r.Post("/{orderId}/refund", ordercontrollers.Refund(deps.Orders, logg))
				r.Post("/{orderId}/reviews", ordercontrollers.SubmitReview(deps.Reviews, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Post("/orders/{orderId}/resolve-dispute", controllers.AdminResolveDispute(deps.Orders, logg))
			r.Post("/orders/{orderId}/escalate-refund", controllers.AdminEscalateRefund(deps.Orders, logg))
			r.Get("/outbox/dlq", controllers.AdminOutboxDLQ(deps.OutboxDLQ, logg))
			r.Get("/analytics/escrow", analyticscontrollers.EscrowAnalytics(deps.Analytics, logg))
		})
	})

	return r
}
