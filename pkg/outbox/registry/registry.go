// Package registry maps outbox event types to their Pub/Sub routing and
// payload schema.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/surfacemarket-backend/pkg/config"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox"
	"github.com/angelmondragon/surfacemarket-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type. AnalyticsTopic is empty for events
// the analytics pipeline does not consume.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	AnalyticsTopic string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// Topics lists every topic the event must reach, primary first.
func (r ResolvedEvent) Topics() []string {
	topics := []string{r.Descriptor.Topic}
	if a := r.Descriptor.AnalyticsTopic; a != "" && a != r.Descriptor.Topic {
		topics = append(topics, a)
	}
	return topics
}

// NonRetryableError marks a row that will never publish and belongs in the DLQ.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func schema[T any]() func() any {
	return func() any { return new(T) }
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry wires every escrow event to the escrow topic. Order and
// payout lifecycle events are mirrored to the analytics topic when one is
// configured; reviews are not.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.EscrowTopic == "" {
		return nil, errors.New("escrow topic is required")
	}

	lifecycle := map[enums.OutboxEventType]func() any{
		enums.EventOrderCreated:            schema[payloads.OrderCreatedEvent](),
		enums.EventOrderPaid:               schema[payloads.OrderPaidEvent](),
		enums.EventDeliveryReported:        schema[payloads.DeliveryReportedEvent](),
		enums.EventDeliveryConfirmed:       schema[payloads.DeliveryConfirmedEvent](),
		enums.EventDisputeOpened:           schema[payloads.DisputeOpenedEvent](),
		enums.EventDisputeResolved:         schema[payloads.DisputeResolvedEvent](),
		enums.EventPayoutReleased:          schema[payloads.PayoutSettledEvent](),
		enums.EventPayoutRefunded:          schema[payloads.PayoutSettledEvent](),
		enums.EventPayoutPartiallyRefunded: schema[payloads.PayoutSettledEvent](),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(lifecycle)+1)}
	for eventType, factory := range lifecycle {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateOrder,
			Topic:          cfg.EscrowTopic,
			AnalyticsTopic: cfg.AnalyticsTopic,
			PayloadFactory: factory,
		}
	}
	reg.entries[enums.EventReviewSubmitted] = EventDescriptor{
		EventType:      enums.EventReviewSubmitted,
		AggregateType:  enums.AggregateReview,
		Topic:          cfg.EscrowTopic,
		PayloadFactory: schema[payloads.ReviewSubmittedEvent](),
	}
	return reg, nil
}

// Descriptor returns the routing for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row is malformed and will stay so.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s aggregates, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
