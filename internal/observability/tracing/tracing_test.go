package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func TestInstall_SetsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rec := tracetest.NewSpanRecorder()
	shutdown, err := Install(context.Background(), "medportal-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "unit", ended[0].Name())
	assert.Contains(t, ended[0].Resource().Attributes(), semconv.ServiceName("medportal-test"))
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	require.NoError(t, shutdown(context.Background()))
}
