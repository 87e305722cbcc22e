package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/rig/internal/core/ports"
)

// LogBufferSize determines the size of the async log channel.
const LogBufferSize = 4096

// OTelTracer is a concrete implementation of ports.Tracer using OpenTelemetry.
type OTelTracer struct {
	tracer trace.Tracer
	clock  clockwork.Clock

	mu       sync.RWMutex
	renderer ports.Renderer

	// sendMu guards closed. The dispatcher never takes it.
	sendMu sync.RWMutex
	msgs   chan any
	done   chan struct{}
	closed bool
}

var _ ports.Tracer = (*OTelTracer)(nil)

// NewOTelTracer creates a tracer named name on provider.
func NewOTelTracer(provider trace.TracerProvider, name string) *OTelTracer {
	t := &OTelTracer{
		tracer: provider.Tracer(name),
		clock:  clockwork.NewRealClock(),
		msgs:   make(chan any, LogBufferSize),
		done:   make(chan struct{}),
	}
	go t.runLoop()
	return t
}

// WithRenderer sets the renderer that receives plans and rule output.
func (t *OTelTracer) WithRenderer(r ports.Renderer) *OTelTracer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderer = r
	return t
}

// WithClock sets the clock driving log batching.
func (t *OTelTracer) WithClock(c clockwork.Clock) *OTelTracer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = c
	return t
}

func (t *OTelTracer) current() ports.Renderer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.renderer
}

func (t *OTelTracer) runLoop() {
	defer close(t.done)
	for msg := range t.msgs {
		r := t.current()
		if r == nil {
			continue
		}
		switch m := msg.(type) {
		case msgRuleLog:
			r.OnRuleLog(m.SpanID, m.Data)
		case msgPlan:
			r.OnPlanEmit(m.Rules, m.Dependencies, m.Targets)
		}
	}
}

// send queues msg. Logs are dropped when the buffer is full, plans never are.
func (t *OTelTracer) send(msg any, mustDeliver bool) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.closed || t.current() == nil {
		return
	}
	if mustDeliver {
		t.msgs <- msg
		return
	}
	select {
	case t.msgs <- msg:
	default:
	}
}

// Shutdown stops the background dispatcher after delivering queued messages.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	t.sendMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.msgs)
	}
	t.sendMu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start creates a new span. Spans started WithTarget carry the AttrTarget attribute.
func (t *OTelTracer) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := &ports.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var startOpts []trace.SpanStartOption
	if cfg.Target != "" {
		startOpts = append(startOpts, trace.WithAttributes(attribute.String(AttrTarget, cfg.Target)))
	}
	ctx, span := t.tracer.Start(ctx, name, startOpts...)

	s := &OTelSpan{span: span}
	if t.current() != nil {
		spanID := span.SpanContext().SpanID().String()
		t.mu.RLock()
		clock := t.clock
		t.mu.RUnlock()
		s.batcher = NewLogBatcher(clock, 0, 0, func(data []byte) {
			t.send(msgRuleLog{SpanID: spanID, Data: data}, false)
		})
	}
	return ctx, s
}

// EmitPlan records the plan on the current span and forwards it to the renderer.
func (t *OTelTracer) EmitPlan(ctx context.Context, ruleNames []string, deps map[string][]string, targets []string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("plan_emitted", trace.WithAttributes(
			attribute.StringSlice("rules", ruleNames),
			attribute.StringSlice("targets", targets),
		))
	}
	t.send(msgPlan{Rules: ruleNames, Dependencies: deps, Targets: targets}, true)
}

// OTelSpan is a concrete implementation of ports.Span using OpenTelemetry.
type OTelSpan struct {
	span    trace.Span
	batcher *LogBatcher
}

// End flushes buffered output and completes the span.
func (s *OTelSpan) End() {
	if s.batcher != nil {
		_ = s.batcher.Close()
	}
	s.span.End()
}

// RecordError records an error for the span.
func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetAttribute adds a key-value pair to the span.
func (s *OTelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// Write sends output to the renderer, or records it as a span event without one.
func (s *OTelSpan) Write(p []byte) (int, error) {
	if s.batcher != nil {
		return s.batcher.Write(p)
	}
	s.span.AddEvent("log", trace.WithAttributes(attribute.String("message", string(p))))
	return len(p), nil
}
