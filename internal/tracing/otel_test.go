package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		assert.NoError(t, tp.Shutdown(context.Background()))
	})
	return recorder
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestStartSpan(t *testing.T) {
	t.Run("should write the span trace ID back into the context", func(t *testing.T) {
		installRecorder(t)

		ctx, span := StartSpan(context.Background(), "prism.test", "test.op")
		span.End()

		require.NotEmpty(t, GetTraceID(ctx))
		assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	})

	t.Run("should keep an existing trace ID", func(t *testing.T) {
		installRecorder(t)

		ctx := WithTraceID(context.Background(), "trace-keep")
		ctx, span := StartSpan(ctx, "prism.test", "test.op")
		span.End()

		assert.Equal(t, "trace-keep", GetTraceID(ctx))
	})

	t.Run("should attach agent and request IDs from the context", func(t *testing.T) {
		recorder := installRecorder(t)

		ctx := WithAgentID(context.Background(), "agent-7")
		ctx = WithRequestID(ctx, "req-42")
		_, span := StartSpan(ctx, "prism.test", "test.op",
			attribute.String("task_type", "code"))
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		attrs := spans[0].Attributes()
		assert.Equal(t, "agent-7", attrValue(attrs, "agent_id"))
		assert.Equal(t, "req-42", attrValue(attrs, "request_id"))
		assert.Equal(t, "code", attrValue(attrs, "task_type"))
	})

	t.Run("should omit correlation attributes for a bare context", func(t *testing.T) {
		recorder := installRecorder(t)

		_, span := StartSpan(context.Background(), "prism.test", "test.op")
		span.End()

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Empty(t, attrValue(spans[0].Attributes(), "agent_id"))
		assert.Empty(t, attrValue(spans[0].Attributes(), "request_id"))
	})
}

func TestInit(t *testing.T) {
	t.Run("should install a provider and clamp the ratio", func(t *testing.T) {
		err := Init(Options{ServiceName: "prism", ServiceVersion: "test", SampleRatio: 2})
		require.NoError(t, err)

		// Later calls return the first outcome
		assert.NoError(t, Init(Options{ServiceName: "other"}))
		assert.NoError(t, Shutdown(context.Background()))
	})
}
