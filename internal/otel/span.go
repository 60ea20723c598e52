// Package otel provides OpenTelemetry instrumentation helpers shared by the
// sync and enrichment services.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on spans across the services.
const (
	AttrService     = attribute.Key("avici.service")
	AttrSyncMode    = attribute.Key("sync.mode")
	AttrPage        = attribute.Key("feed.page")
	AttrHasNextPage = attribute.Key("feed.has_next_page")
	AttrUserID      = attribute.Key("user.id")
	AttrBatchSize   = attribute.Key("pagination.limit")
	AttrBatchOffset = attribute.Key("pagination.offset")
	AttrResultCount = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// The status description stays generic so URLs carrying API keys or SQL never
// end up in the span status; the error itself is kept as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
