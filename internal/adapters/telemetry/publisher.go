package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
)

const (
	publishQueueSize = 1024
	publishBatchSize = 64
	publishTimeout   = 5 * time.Second
)

// EventPublisher implements sdktrace.SpanProcessor by appending the lifecycle of
// rule spans to a run of the distributed event log. Events are published in span
// order by a background goroutine. A failed publish is logged and dropped.
type EventPublisher struct {
	log     ports.EventLog
	logger  ports.Logger
	runID   domain.RunID
	slaveID string
	clock   clockwork.Clock

	mu     sync.Mutex
	queue  chan domain.BuildSlaveEvent
	done   chan struct{}
	closed bool
}

var _ sdktrace.SpanProcessor = (*EventPublisher)(nil)

// NewEventPublisher starts publishing to runID as slaveID. A nil clock selects the
// real clock.
func NewEventPublisher(
	log ports.EventLog,
	logger ports.Logger,
	runID domain.RunID,
	slaveID string,
	clock clockwork.Clock,
) *EventPublisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p := &EventPublisher{
		log:     log,
		logger:  logger,
		runID:   runID,
		slaveID: slaveID,
		clock:   clock,
		queue:   make(chan domain.BuildSlaveEvent, publishQueueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// OnStart publishes EventRuleStarted for rule spans.
func (p *EventPublisher) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	target, ok := stringAttr(s.Attributes(), AttrTarget)
	if !ok {
		return
	}
	p.enqueue(domain.EventRuleStarted, map[string]string{"target": target})
}

// OnEnd publishes EventCacheHit for restored rules and EventRuleFinished for every
// rule span.
func (p *EventPublisher) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := s.Attributes()
	target, ok := stringAttr(attrs, AttrTarget)
	if !ok {
		return
	}

	payload := map[string]string{"target": target}
	if key, ok := stringAttr(attrs, AttrRuleKey); ok {
		payload["rulekey"] = key
	}
	cached, _ := boolAttr(attrs, AttrCached)
	if cached {
		p.enqueue(domain.EventCacheHit, payload)
	}

	finished := make(map[string]string, len(payload)+2)
	for k, v := range payload {
		finished[k] = v
	}
	switch err := spanError(s); {
	case err != nil:
		finished["status"] = "failed"
		finished["error"] = err.Error()
	case cached:
		finished["status"] = "cached"
	default:
		finished["status"] = "built"
	}
	p.enqueue(domain.EventRuleFinished, finished)
}

// ForceFlush does nothing. Shutdown drains the queue.
func (p *EventPublisher) ForceFlush(_ context.Context) error {
	return nil
}

// Shutdown publishes EventBuildFinished and waits until the queue is drained.
func (p *EventPublisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.queue <- p.event(domain.EventBuildFinished, nil)
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) event(typ domain.EventType, payload map[string]string) domain.BuildSlaveEvent {
	return domain.BuildSlaveEvent{
		RunID:     p.runID,
		Timestamp: p.clock.Now().UTC(),
		SlaveID:   p.slaveID,
		Type:      typ,
		Payload:   payload,
	}
}

func (p *EventPublisher) enqueue(typ domain.EventType, payload map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue <- p.event(typ, payload)
}

func (p *EventPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		batch := []domain.BuildSlaveEvent{ev}
	drain:
		for len(batch) < publishBatchSize {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		p.publish(batch)
	}
}

func (p *EventPublisher) publish(batch []domain.BuildSlaveEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := p.log.Publish(ctx, p.runID, batch); err != nil {
		p.logger.Warn("failed to publish build events", "run", p.runID.String(), "events", len(batch), "error", err.Error())
	}
}
