package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/rig/internal/core/ports"
)

// Bridge implements sdktrace.SpanProcessor to bridge rule spans to a Renderer.
// Spans without an AttrTarget attribute are ignored.
type Bridge struct {
	renderer ports.Renderer
}

var _ sdktrace.SpanProcessor = (*Bridge)(nil)

// NewBridge returns a new Bridge.
func NewBridge(renderer ports.Renderer) *Bridge {
	return &Bridge{renderer: renderer}
}

// OnStart is called when a span starts.
func (b *Bridge) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if b.renderer == nil {
		return
	}
	sc := s.SpanContext()
	target, ok := stringAttr(s.Attributes(), AttrTarget)
	if !sc.IsValid() || !ok {
		return
	}

	var parentID string
	if parentSpan := trace.SpanFromContext(parent); parentSpan.SpanContext().IsValid() {
		parentID = parentSpan.SpanContext().SpanID().String()
	}
	b.renderer.OnRuleStart(sc.SpanID().String(), parentID, target, s.StartTime())
}

// OnEnd is called when a span ends.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if b.renderer == nil {
		return
	}
	sc := s.SpanContext()
	if _, ok := stringAttr(s.Attributes(), AttrTarget); !sc.IsValid() || !ok {
		return
	}

	cached, _ := boolAttr(s.Attributes(), AttrCached)
	b.renderer.OnRuleComplete(sc.SpanID().String(), s.EndTime(), cached, spanError(s))
}

// ForceFlush does nothing.
func (b *Bridge) ForceFlush(_ context.Context) error {
	return nil
}

// Shutdown does nothing.
func (b *Bridge) Shutdown(_ context.Context) error {
	return nil
}

// spanError rebuilds the error recorded on a failed span.
func spanError(s sdktrace.ReadOnlySpan) error {
	if s.Status().Code != codes.Error {
		return nil
	}
	desc := s.Status().Description
	if desc == "" {
		desc = "rule failed"
	}
	return errors.New(desc)
}

func stringAttr(attrs []attribute.KeyValue, key attribute.Key) (string, bool) {
	for _, kv := range attrs {
		if kv.Key == key && kv.Value.Type() == attribute.STRING {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func boolAttr(attrs []attribute.KeyValue, key attribute.Key) (bool, bool) {
	for _, kv := range attrs {
		if kv.Key == key && kv.Value.Type() == attribute.BOOL {
			return kv.Value.AsBool(), true
		}
	}
	return false, false
}
