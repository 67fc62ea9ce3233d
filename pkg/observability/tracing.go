package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name for bot spans.
const TracerName = "recap-bot"

// Span attribute keys
const (
	AttrCycleID      = "recap.cycle_id"
	AttrTrigger      = "recap.trigger"
	AttrEventID      = "recap.event_id"
	AttrEventTitle   = "recap.event_title"
	AttrOutcome      = "recap.outcome"
	AttrMatchTier    = "recap.match_tier"
	AttrCollaborator = "recap.collaborator"
	AttrOperation    = "recap.operation"
	AttrErrorCode    = "error.code"
)

// Span names
const (
	SpanPollCycle    = "recap.poll_cycle"
	SpanProcessEvent = "recap.process_event"
	SpanCall         = "recap.call"
)

// Tracer starts spans on the global OpenTelemetry provider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by otel's global provider. Without an
// installed SDK the spans are no-ops.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// NewTracerWithProvider uses an explicit provider, mostly for tests.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

func (t *Tracer) get() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer(TracerName)
	}
	return t.tracer
}

// StartCycleSpan starts the root span for one poll cycle.
func (t *Tracer) StartCycleSpan(ctx context.Context, cycleID, trigger string) (context.Context, trace.Span) {
	return t.get().Start(ctx, SpanPollCycle,
		trace.WithAttributes(
			attribute.String(AttrCycleID, cycleID),
			attribute.String(AttrTrigger, trigger),
		),
	)
}

// StartEventSpan starts a span around processing one meeting event.
func (t *Tracer) StartEventSpan(ctx context.Context, eventID, title string) (context.Context, trace.Span) {
	return t.get().Start(ctx, SpanProcessEvent,
		trace.WithAttributes(
			attribute.String(AttrEventID, eventID),
			attribute.String(AttrEventTitle, title),
		),
	)
}

// StartCallSpan starts a client span for a collaborator request.
func (t *Tracer) StartCallSpan(ctx context.Context, collaborator, op string) (context.Context, trace.Span) {
	return t.get().Start(ctx, SpanCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrCollaborator, collaborator),
			attribute.String(AttrOperation, op),
		),
	)
}

// SetOutcome tags span with the pipeline outcome.
func SetOutcome(span trace.Span, outcome, tier string) {
	span.SetAttributes(attribute.String(AttrOutcome, outcome))
	if tier != "" {
		span.SetAttributes(attribute.String(AttrMatchTier, tier))
	}
}

// SetError records err on span and marks it failed.
func SetError(span trace.Span, err error, code string) {
	span.SetStatus(codes.Error, err.Error())
	if code != "" {
		span.SetAttributes(attribute.String(AttrErrorCode, code))
	}
	span.RecordError(err)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
