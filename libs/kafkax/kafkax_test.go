package kafkax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestEventMetaHeaders(t *testing.T) {
	meta := EventMeta{EventID: "evt-1", EventType: "booking.created.v1"}
	headers := meta.Headers()
	assert.Equal(t, "evt-1", HeaderValue(headers, HeaderEventID))
	assert.Equal(t, "booking.created.v1", HeaderValue(headers, HeaderEventType))
	assert.Empty(t, HeaderValue(headers, "traceparent"))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e", EventType: "t"}.Headers())
	require.NotEmpty(t, HeaderValue(headers, "traceparent"))
	assert.Len(t, headers, 3)

	extracted := otel.GetTextMapPropagator().Extract(context.Background(), &headerCarrier{headers: headers})
	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	assert.Error(t, ReadyCheck(nil)(context.Background()))
}
