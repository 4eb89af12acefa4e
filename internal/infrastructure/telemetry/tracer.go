package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/davidleathers/auction-ledger"

// StartDatabaseSpan starts a client span for a statement against table
func StartDatabaseSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, fmt.Sprintf("db.%s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		))
}

// StartMessagingSpan starts a producer span for a send to destination
func StartMessagingSpan(ctx context.Context, system, operation, destination string) (context.Context, trace.Span) {
	return Tracer(instrumentationName).Start(ctx, fmt.Sprintf("%s %s %s", system, operation, destination),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", system),
			attribute.String("messaging.operation", operation),
			attribute.String("messaging.destination.name", destination),
		))
}

// EndSpan records err, if any, and ends span
func EndSpan(span trace.Span, err error) {
	RecordError(span, err)
	span.End()
}
