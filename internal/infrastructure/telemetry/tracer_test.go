package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	_, span := StartDatabaseSpan(context.Background(), "insert", "ledger_journal")
	EndSpan(span, nil)

	_, span = StartMessagingSpan(context.Background(), "redis", "publish", "events")
	EndSpan(span, errors.New("connection refused"))

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	db := ended[0]
	assert.Equal(t, "db.insert ledger_journal", db.Name())
	assert.Equal(t, trace.SpanKindClient, db.SpanKind())
	assert.Equal(t, codes.Unset, db.Status().Code)

	msg := ended[1]
	assert.Equal(t, "redis publish events", msg.Name())
	assert.Equal(t, trace.SpanKindProducer, msg.SpanKind())
	assert.Equal(t, codes.Error, msg.Status().Code)
	assert.Equal(t, "connection refused", msg.Status().Description)
}
