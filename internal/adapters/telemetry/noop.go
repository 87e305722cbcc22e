package telemetry

import (
	"context"

	"go.trai.ch/rig/internal/core/ports"
)

// NoOpTracer discards spans. It backs key-only runs and tests.
type NoOpTracer struct{}

var _ ports.Tracer = NoOpTracer{}

// NewNoOpTracer returns a tracer that records nothing.
func NewNoOpTracer() NoOpTracer {
	return NoOpTracer{}
}

// Start implements ports.Tracer.
func (NoOpTracer) Start(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
	return ctx, noOpSpan{}
}

// EmitPlan implements ports.Tracer.
func (NoOpTracer) EmitPlan(context.Context, []string, map[string][]string, []string) {}

type noOpSpan struct{}

func (noOpSpan) Write(p []byte) (int, error) { return len(p), nil }
func (noOpSpan) End()                        {}
func (noOpSpan) RecordError(error)           {}
func (noOpSpan) SetAttribute(string, any)    {}
