package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/router"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

const consumerName = "escrow-analytics"

// Handler processes one decoded analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes escrow events and hands them to the BigQuery router. Each
// event id is processed at most once per idempotency window.
type Service struct {
	subscription receiver
	handler      Handler
	seen         idempotencyChecker
	logg         *logger.Logger
}

// NewService creates the analytics worker.
func NewService(subscription receiver, handler Handler, seen idempotencyChecker, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case seen == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		handler:      handler,
		seen:         seen,
		logg:         logg,
	}, nil
}

// Run receives messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acked. Messages that can never
// succeed (undecodable, unsupported type) are acked so they do not redeliver
// forever; transient failures are nacked with the idempotency mark removed.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := DecodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable analytics message")
		return true
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping analytics message with invalid event id")
		return true
	}

	already, err := s.seen.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		s.logg.Debug(logCtx, "analytics event already processed")
		return true
	}

	if err := s.handler.Handle(logCtx, envelope); err != nil {
		if errors.Is(err, router.ErrUnsupportedEventType) {
			s.logg.Warn(logCtx, "no analytics projection for event type")
			return true
		}
		s.logg.Error(logCtx, "analytics handler failed", err)
		if delErr := s.seen.Delete(logCtx, consumerName, eventID); delErr != nil {
			s.logg.Error(logCtx, "failed to clear idempotency mark", delErr)
		}
		return false
	}

	s.logg.Info(logCtx, "analytics event recorded")
	return true
}
