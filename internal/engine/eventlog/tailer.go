package eventlog

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultPollInterval is the pause between two tail queries.
const DefaultPollInterval = 500 * time.Millisecond

// Tailer follows a run by polling range queries with an advancing First.
type Tailer struct {
	log      ports.EventLog
	logger   ports.Logger
	clock    clockwork.Clock
	interval time.Duration
}

// NewTailer creates a Tailer. A nil clock means the real clock.
func NewTailer(log ports.EventLog, logger ports.Logger, clock clockwork.Clock, interval time.Duration) *Tailer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tailer{log: log, logger: logger, clock: clock, interval: interval}
}

// Tail streams the events of runID starting at first until ctx is done. The error
// channel receives at most one value and is closed together with the event channel.
// A sequence gap stops the tail; other failures are retried on the next poll.
func (t *Tailer) Tail(ctx context.Context, runID domain.RunID, first int64) (<-chan domain.BuildSlaveEvent, <-chan error) {
	events := make(chan domain.BuildSlaveEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(events)
		if err := t.run(ctx, runID, first, events); err != nil {
			errc <- err
		}
	}()
	return events, errc
}

func (t *Tailer) run(ctx context.Context, runID domain.RunID, next int64, out chan<- domain.BuildSlaveEvent) error {
	if next < 1 {
		next = 1
	}
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		r := t.log.Query(ctx, domain.EventsQuery{RunID: runID, First: domain.Seq(next)})
		switch {
		case r.Succeeded():
			for _, e := range r.Events() {
				select {
				case out <- e:
					next = e.Seq + 1
				case <-ctx.Done():
					return nil
				}
			}
		case isGap(r.ErrorMessage()):
			return zerr.With(zerr.Wrap(domain.ErrLogSequenceGap, r.ErrorMessage()), "run", runID.String())
		default:
			t.logger.Warn("tail query failed, retrying", "run", runID.String(), "error", r.ErrorMessage())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// isGap detects a gap failure. The message is all that crosses the wire.
func isGap(message string) bool {
	return strings.Contains(message, domain.ErrLogSequenceGap.Error())
}
