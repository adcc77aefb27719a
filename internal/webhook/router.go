package webhook

import (
	"context"

	"entry-service/internal/models"

	"go.uber.org/zap"
)

// EventKind is the closed set of processor event kinds this service acts
// on. Anything outside the set maps to KindUnknown; the processor may widen
// its catalogue at any time and unknown kinds must never be errors.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindPaymentSucceeded
	KindPaymentFailed
)

// ParseEventKind maps a wire event type to an EventKind
func ParseEventKind(s string) EventKind {
	switch s {
	case models.ProcessorEventPaymentSucceeded:
		return KindPaymentSucceeded
	case models.ProcessorEventPaymentFailed:
		return KindPaymentFailed
	default:
		return KindUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case KindPaymentSucceeded:
		return models.ProcessorEventPaymentSucceeded
	case KindPaymentFailed:
		return models.ProcessorEventPaymentFailed
	default:
		return "unknown"
	}
}

// Handler processes one verified event
type Handler func(ctx context.Context, event *VerifiedEvent) error

// Router dispatches a verified event to the handler registered for its
// kind. At most one handler runs per event; retry policy belongs to the
// transport (the processor redelivers on non-2xx).
type Router struct {
	onPaymentSucceeded Handler
	onPaymentFailed    Handler
	logger             *zap.Logger
}

// NewRouter creates an empty router
func NewRouter(logger *zap.Logger) *Router {
	return &Router{logger: logger}
}

// OnPaymentSucceeded registers the handler for payment_succeeded events
func (r *Router) OnPaymentSucceeded(h Handler) {
	r.onPaymentSucceeded = h
}

// OnPaymentFailed registers the handler for payment_failed events
func (r *Router) OnPaymentFailed(h Handler) {
	r.onPaymentFailed = h
}

// Dispatch routes the event by kind. Unknown kinds and unregistered
// handlers are no-op successes.
func (r *Router) Dispatch(ctx context.Context, event *VerifiedEvent) error {
	switch event.Kind {
	case KindPaymentSucceeded:
		if r.onPaymentSucceeded != nil {
			return r.onPaymentSucceeded(ctx, event)
		}
	case KindPaymentFailed:
		if r.onPaymentFailed != nil {
			return r.onPaymentFailed(ctx, event)
		}
	default:
		r.logger.Info("Ignoring unrecognized event kind",
			zap.String("event_id", event.ID))
	}
	return nil
}
