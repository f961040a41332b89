// Package router turns decoded analytics envelopes into escrow_events rows.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/types"
	"github.com/angelmondragon/surfacemarket-backend/internal/analytics/writer"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
)

// ErrUnsupportedEventType is returned for events the analytics table does
// not track. The worker acks those instead of retrying them.
var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

type Writer interface {
	InsertEscrowEvent(ctx context.Context, row types.EscrowEventRow) error
}

// Handler receives an envelope with its payload already decoded into the
// event's typed struct.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler Handler
}

// escrowRoute binds payload type T to a projection that writes one row.
func escrowRoute[T any](w Writer, logg *logger.Logger, project func(*types.EscrowEventRow, *T)) route {
	return route{
		decode: func(raw json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(raw, v); err != nil {
				return nil, err
			}
			return v, nil
		},
		handler: &escrowHandler{writer: w, logg: logg, project: func(row *types.EscrowEventRow, payload any) error {
			typed, ok := payload.(*T)
			if !ok {
				return fmt.Errorf("%s: unexpected payload %T", row.EventType, payload)
			}
			project(row, typed)
			return nil
		}},
	}
}

type Router struct {
	routes map[enums.AnalyticsEventType]route
}

// NewRouter registers a row projection for every tracked event. overrides
// replace the handler of an event while keeping its payload type.
func NewRouter(w Writer, logg *logger.Logger, overrides map[enums.AnalyticsEventType]Handler) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	routes := map[enums.AnalyticsEventType]route{
		enums.AnalyticsEventOrderCreated:      escrowRoute(w, logg, projectOrderCreated),
		enums.AnalyticsEventOrderPaid:         escrowRoute(w, logg, projectOrderPaid),
		enums.AnalyticsEventDeliveryReported:  escrowRoute(w, logg, projectDeliveryReported),
		enums.AnalyticsEventDeliveryConfirmed: escrowRoute(w, logg, projectDeliveryConfirmed),
		enums.AnalyticsEventDisputeOpened:     escrowRoute(w, logg, projectDisputeOpened),
		enums.AnalyticsEventDisputeResolved:   escrowRoute(w, logg, projectDisputeResolved),
		enums.AnalyticsEventPayoutReleased:    escrowRoute(w, logg, projectPayoutSettled),
		enums.AnalyticsEventPayoutRefunded:    escrowRoute(w, logg, projectPayoutSettled),
		enums.AnalyticsEventPayoutPartial:     escrowRoute(w, logg, projectPayoutSettled),
	}
	for eventType, h := range overrides {
		if r, ok := routes[eventType]; ok && h != nil {
			r.handler = h
			routes[eventType] = r
		}
	}
	return &Router{routes: routes}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	rt, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", envelope.EventType)
	}
	payload, err := rt.decode(envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return rt.handler.Handle(ctx, envelope, payload)
}

type escrowHandler struct {
	writer  Writer
	logg    *logger.Logger
	project func(*types.EscrowEventRow, any) error
}

func (h *escrowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	orderID, ok := envelope.OrderID()
	if !ok {
		return fmt.Errorf("%w: %s is not an order event", ErrUnsupportedEventType, envelope.EventType)
	}
	ctx = h.logg.WithFields(h.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"event_type": envelope.EventType,
		"event_id":   envelope.EventID,
	})

	row := types.EscrowEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		OrderID:    orderID.String(),
	}
	if err := h.project(&row, payload); err != nil {
		h.logg.Error(ctx, "escrow projection failed", err)
		return err
	}
	raw, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return err
	}
	row.Payload = raw

	if err := h.writer.InsertEscrowEvent(ctx, row); err != nil {
		h.logg.Error(ctx, "escrow row insert failed", err)
		return err
	}
	h.logg.Debug(ctx, "escrow row inserted")
	return nil
}

