package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/rig/internal/adapters/telemetry"
	"go.trai.ch/rig/internal/core/ports"
)

func setupMonitor(t *testing.T) (*tracetest.SpanRecorder, *trace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func TestOTelTracer_EmitPlan(t *testing.T) {
	sr, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test-tracer")
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	ctx := context.Background()
	tracer.EmitPlan(ctx, []string{"//a:a", "//b:b"}, nil, []string{"//a:a"})
	assert.Empty(t, sr.Ended())

	ctx, span := tp.Tracer("test").Start(ctx, "root")
	tracer.EmitPlan(ctx, []string{"//a:a", "//b:b"}, nil, []string{"//a:a"})
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "plan_emitted", events[0].Name)
}

func TestOTelTracer_StartWithTarget(t *testing.T) {
	sr, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test-tracer")
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	_, span := tracer.Start(context.Background(), "//pkg:lib", ports.WithTarget("//pkg:lib"))
	span.End()
	_, plain := tracer.Start(context.Background(), "build")
	plain.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Contains(t, spans[0].Attributes(), attribute.String(telemetry.AttrTarget, "//pkg:lib"))
	for _, kv := range spans[1].Attributes() {
		assert.NotEqual(t, attribute.Key(telemetry.AttrTarget), kv.Key)
	}
}

func TestOTelSpan_SetAttribute(t *testing.T) {
	sr, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test-tracer")
	_, span := tracer.Start(context.Background(), "attr-test")

	span.SetAttribute("str", "val")
	span.SetAttribute("int", 123)
	span.SetAttribute("int64", int64(456))
	span.SetAttribute("float", 3.14)
	span.SetAttribute("bool", true)
	span.SetAttribute("slice", []string{"a", "b"})
	span.SetAttribute("unknown", struct{}{})
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)

	attrMap := make(map[string]any)
	for _, a := range spans[0].Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			attrMap[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			attrMap[string(a.Key)] = a.Value.AsInt64()
		case attribute.FLOAT64:
			attrMap[string(a.Key)] = a.Value.AsFloat64()
		case attribute.BOOL:
			attrMap[string(a.Key)] = a.Value.AsBool()
		case attribute.STRINGSLICE:
			attrMap[string(a.Key)] = a.Value.AsStringSlice()
		}
	}

	assert.Equal(t, "val", attrMap["str"])
	assert.Equal(t, int64(123), attrMap["int"])
	assert.Equal(t, int64(456), attrMap["int64"])
	assert.InEpsilon(t, 3.14, attrMap["float"], 0.001)
	assert.Equal(t, true, attrMap["bool"])
	assert.Equal(t, []string{"a", "b"}, attrMap["slice"])
	assert.Equal(t, "{}", attrMap["unknown"])
}

func TestOTelSpan_WriteWithoutRenderer(t *testing.T) {
	sr, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test-tracer")

	_, span := tracer.Start(context.Background(), "log-test")
	n, err := span.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "log", events[0].Name)
	assert.Equal(t, "hello", events[0].Attributes[0].Value.AsString())
}

func TestOTelSpan_RecordError(t *testing.T) {
	sr, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test")

	_, span := tracer.Start(context.Background(), "test-error")
	span.RecordError(assert.AnError)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, assert.AnError.Error(), spans[0].Status().Description)
}

func TestOTelTracer_ShutdownIsIdempotent(t *testing.T) {
	_, tp := setupMonitor(t)
	tracer := telemetry.NewOTelTracer(tp, "test")
	require.NoError(t, tracer.Shutdown(context.Background()))
	require.NoError(t, tracer.Shutdown(context.Background()))
}
