package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrSessionID   = "session.id"
	AttrSessionMode = "session.mode"
	AttrPosition    = "usi.position"
	AttrEnginePath  = "engine.path"
	AttrEngineName  = "engine.name"
	AttrEngineURI   = "engine.uri"
	AttrOptionCount = "engine.options"
	AttrCacheHit    = "cache.hit"
	AttrPonderHit   = "ponder.hit"
)

// Span names.
const (
	SpanLaunch      = "registry.launch"
	SpanQueryEngine = "registry.query_engine"
	SpanPressButton = "registry.press_button"
	SpanSearch      = "session.search"
	SpanPonder      = "session.ponder"
	SpanMateSearch  = "session.mate_search"
	SpanReady       = "session.ready"
)

// Span event names.
const (
	EventHandshakeDone = "handshake.done"
	EventPonderAborted = "ponder.aborted"
)

// Start opens an internal span with attrs. A nil tracer uses the no-op
// tracer.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Noop()
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, sets its status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
