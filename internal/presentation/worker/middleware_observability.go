package workerpresentation

import (
	"context"

	domoutbox "github.com/Parth18062003/E-Commerce-sub000/internal/domain/outbox"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability"
	"github.com/Parth18062003/E-Commerce-sub000/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// identified is implemented by events that carry their own id.
type identified interface {
	ID() string
}

// WithEventContext injects a request-scoped logger for an event delivery.
// Dynamic fields only: event name, event_id (the event's own id, generated
// if absent), trace_id/span_id when ctx carries a valid span, plus
// caller-provided low-cardinality attributes (consumer group, topic).
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	event domoutbox.Event,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = logctx.FromOr(ctx, observability.NopLogger())
	}

	fields := make([]observability.Field, 0, 4+len(attrs))

	evtID := ""
	if e, ok := event.(identified); ok {
		evtID = e.ID()
	}
	if evtID == "" {
		evtID = attrs["event_id"]
	}
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))
	if event != nil {
		fields = append(fields, observability.F("event", event.EventName()))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Middleware wraps an event handler so every delivery runs with an
// event-scoped logger on its context.
func Middleware(base observability.Logger, attrs map[string]string) func(domoutbox.Handler) domoutbox.Handler {
	return func(next domoutbox.Handler) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			return next(WithEventContext(ctx, base, e, attrs), e)
		}
	}
}

type subscriber struct {
	next domoutbox.Subscriber
	mw   func(domoutbox.Handler) domoutbox.Handler
}

func (s subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, s.mw(h))
}

// Subscriber wraps next so every handler registered through it runs with
// an event-scoped logger.
func Subscriber(next domoutbox.Subscriber, base observability.Logger, attrs map[string]string) domoutbox.Subscriber {
	return subscriber{next: next, mw: Middleware(base, attrs)}
}
