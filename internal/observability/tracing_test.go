package observability

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracing_NoneIsNoop(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(TracingConfig{Exporter: "jaeger"})
	assert.ErrorContains(t, err, `unknown exporter "jaeger"`)
}

func TestSampler(t *testing.T) {
	assert.True(t, strings.HasPrefix(sampler(1).Description(), "ParentBased{root:AlwaysOnSampler"))
	assert.True(t, strings.HasPrefix(sampler(0).Description(), "ParentBased{root:AlwaysOffSampler"))
	assert.True(t, strings.HasPrefix(sampler(0.25).Description(), "ParentBased{root:TraceIDRatioBased{0.25}"))
}

func TestStartEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := Tracer
	Tracer = tp.Tracer(ServiceName)
	t.Cleanup(func() { Tracer = prev })

	_, ok := StartSpan(context.Background(), "graphql", "Exec")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "graphql", "Exec")
	EndSpan(failed, errors.New("boom"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "graphql.Exec", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}
